package agent

import (
	"sync"
	"time"
)

// Defaults for the interpretation pipeline. Each can be overridden through
// config; see internal/config.
const (
	// DefaultModelName is the Gemini model used for both generations.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultTimezone anchors "today" for transactions without an explicit date.
	DefaultTimezone = "America/Sao_Paulo"

	// DefaultLocale is the language every assistant reply must use.
	DefaultLocale = "pt-BR"

	DefaultGenerationTimeout   = 30 * time.Second
	DefaultPersistenceTimeout  = 10 * time.Second
	DefaultNotificationTimeout = 10 * time.Second
)

// saoPauloOffset is Brasília time, which has had no daylight saving since 2019.
const saoPauloOffset = -3 * 60 * 60

// DefaultLocation returns DefaultTimezone, or a fixed UTC-3 zone when the
// host has no zone database.
var DefaultLocation = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.FixedZone("-03", saoPauloOffset)
	}
	return loc
})
