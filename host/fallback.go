package host

import (
	"context"

	"github.com/plein/meterlink/frame"
	"github.com/plein/meterlink/mux"
	"github.com/sirupsen/logrus"
)

// LogFallback returns a handler that logs every frame on topics opened by
// the device until they are released.
func LogFallback(log logrus.FieldLogger) mux.Fallback {
	return mux.FallbackFunc(func(ctx context.Context, f frame.Frame, ch mux.Channel) {
		log.WithField("topic", f.Topic).Infof("device opened topic: %s", f.Verb)
		go func() {
			for {
				f, err := ch.Receive(ctx)
				if err != nil {
					return
				}
				log.WithField("topic", f.Topic).Info(f.Verb)
			}
		}()
	})
}
