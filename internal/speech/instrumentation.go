package speech

import "go.opentelemetry.io/otel"

const scopeName = "github.com/dgnsrekt/karaoke/internal/speech"

var tracer = otel.Tracer(scopeName)
