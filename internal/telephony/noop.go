package telephony

import "context"

// NoopGateway is used when no provider credentials are configured. Calls are
// still recorded; StartCall reports ErrNotConfigured so the controller logs it.
type NoopGateway struct{}

func (NoopGateway) Name() string { return "noop" }

func (NoopGateway) StartCall(ctx context.Context, req StartCallRequest) (StartCallResult, error) {
	return StartCallResult{}, ErrNotConfigured
}

func (NoopGateway) CallHistory(ctx context.Context, sessionID string) (CallHistory, error) {
	return CallHistory{}, ErrNotConfigured
}
