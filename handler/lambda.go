package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// Lambda adapts API Gateway proxy events onto the coach routes.
type Lambda struct {
	adapter *httpadapter.HandlerAdapter
}

func NewLambda(h *Handler) *Lambda {
	return newLambdaFor(h.Routes())
}

func newLambdaFor(router http.Handler) *Lambda {
	return &Lambda{adapter: httpadapter.New(sourceIP(router))}
}

// Handle is the aws-lambda-go entry point.
func (l *Lambda) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return l.adapter.ProxyWithContext(ctx, event)
}

// sourceIP sets RemoteAddr from the gateway identity so per-client limits
// key on the caller rather than the Lambda runtime.
func sourceIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc, ok := core.GetAPIGatewayContextFromContext(r.Context()); ok && rc.Identity.SourceIP != "" {
			r.RemoteAddr = rc.Identity.SourceIP + ":0"
		}
		next.ServeHTTP(w, r)
	})
}
