// Command multiinstrument is the instrument segmentation Lambda.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/docuflow/intake-service/internal/bootstrap"
	"github.com/docuflow/intake-service/internal/config"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if err := cfg.Validate("lambda"); err != nil {
		log.Fatalf("%v", err)
	}

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Segmentation: true})
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	lambda.Start(app.Handler.Handle)
}
