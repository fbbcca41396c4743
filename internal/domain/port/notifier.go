package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, userEmail string, videoKey string, stage string, errorMsg string) error
}
