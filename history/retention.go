package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleRetention starts a cron job that drops rows older than keep,
// once every keep. Stop the returned cron on shutdown.
func ScheduleRetention(s *Store, keep time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", keep), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := s.Prune(ctx, time.Now().Add(-keep))
		if err != nil {
			s.logger.Error("history retention failed", "error", err)
			return
		}
		s.logger.Info("history retention", "deleted_readings", n, "keep", keep)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling retention: %w", err)
	}
	c.Start()
	return c, nil
}
