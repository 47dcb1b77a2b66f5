package containers

import "context"

func (a *API) publishJSON(ctx context.Context, subject string, payload map[string]any) {
	if a.store.Bus == nil || subject == "" {
		return
	}
	if err := a.store.Bus.Publish(ctx, subject, payload); err != nil {
		a.logger.Printf("WARN publish %s: %v", subject, err)
	}
}
