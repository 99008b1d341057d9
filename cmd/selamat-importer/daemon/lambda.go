package daemon

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/myselamat/selamat-importer/internal/ingest/dispatcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func installLambdaCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function",
		Long: `Run as an AWS Lambda function handling S3 notifications, EventBridge S3 events
and explicit batch requests. The function answers every invocation with a status code and a body.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, release, err := app.newDispatcher(cmd.Context(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer release()

			slog.Info("Starting Lambda handler")
			app.startLambda(func(ctx context.Context, event json.RawMessage) (dispatcher.Response, error) {
				return d.Handle(ctx, event), nil
			})
			return nil
		},
	}
	app.cmd.AddCommand(cmd)
}

// startLambda hands handler to the Lambda runtime. It only returns if the runtime fails to start.
func startLambda(handler any) {
	lambda.Start(handler)
}
