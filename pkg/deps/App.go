package deps

import (
	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/pubsub"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// App carries the shared dependencies handed to every server handler. Pub
// is nil when no event channel is configured.
type App struct {
	Fiber    *fiber.App
	Logger   *logger.CanonicalLogger
	Database *gorm.DB
	Pub      pubsub.Publisher
}
