package worker

import (
	"github.com/spec-kit/tire-request-service/internal/service"
)

// StartNotificationWorker subscribes the notification service to the bus.
func StartNotificationWorker(notificationService *service.NotificationService) error {
	if notificationService == nil {
		return nil
	}
	return notificationService.Start()
}
