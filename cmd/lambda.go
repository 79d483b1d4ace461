package main

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"design-coach/handler"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve the API from AWS Lambda behind API Gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		level := setupLogger(os.Stdout)
		a, err := buildApp(cmd.Context(), configPath, level)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		h, err := a.handler()
		if err != nil {
			return err
		}
		lambda.StartWithOptions(handler.NewLambda(h).Handle, lambda.WithContext(cmd.Context()))
		return nil
	},
}
