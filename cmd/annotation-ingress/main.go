package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/loandoc/pipeline/internal/ingress"
)

var (
	instance *ingress.Function
	once     sync.Once
	initErr  error
)

func init() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	functions.CloudEvent("AnnotationIngress", annotationIngress)
}

// main is required by the Go Functions Framework.
func main() {}

// annotationIngress is the CloudEvent entry point. Clients initialize once
// per instance; a failed initialization fails every invocation.
func annotationIngress(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		instance, initErr = ingress.New(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization.", "error", initErr)
		return initErr
	}
	return instance.Handle(ctx, e.Type(), e.Data())
}
