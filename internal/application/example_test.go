package application_test

import (
	"context"
	"fmt"
	"log"

	"github.com/ahrav/go-soilcast/infrastructure/llm"
	"github.com/ahrav/go-soilcast/internal/application"
	"github.com/ahrav/go-soilcast/internal/testutils"
)

// Example wires an LLM client into the pipeline. Production code gets the
// client from Config.LLM (see llm.Settings.NewInvoker); here a mock stands in
// for the provider.
func Example() {
	cfg := application.DefaultConfig()

	mock := testutils.NewMockLLMClient("mock-model", cfg.HorizonHours)
	client := llm.NewCorrectionInvoker(mock, llm.InvokerOptions{})

	pipeline, err := application.NewPipelineFromConfig(cfg, client, application.Observability{})
	if err != nil {
		log.Fatal(err)
	}

	forecast, err := pipeline.Run(context.Background(),
		testutils.InitialState(0.45),
		testutils.ConstantWeather(cfg.HorizonHours, 18, 60, 0),
	)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("fallback:", forecast.Metadata.Fallback)
	fmt.Println("model:", forecast.Metadata.Model)
	fmt.Printf("values: %d, first %.2f\n", len(forecast.Values), forecast.Values[0])
	fmt.Println("daily averages:", len(forecast.DailyAverages))
	// Output:
	// fallback: false
	// model: mock-model
	// values: 72, first 0.30
	// daily averages: 3
}
