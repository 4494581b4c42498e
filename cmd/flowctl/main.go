// Command flowctl loads a workflow definition from a YAML file and runs
// it against an in-memory agent registry and session store, printing the
// final result. It exists as a runnable reference for wiring an Engine,
// not as a production host integration.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gomind-flow/flowcore"
	"github.com/gomind-flow/flowcore/agentregistry"
	"github.com/gomind-flow/flowcore/sessionstore"
	"github.com/gomind-flow/flowcore/telemetry"
	"github.com/gomind-flow/flowcore/workflowmodel"
)

func main() {
	path := flag.String("workflow", "", "path to a workflow YAML file")
	inputJSON := flag.String("input", "{}", "JSON-encoded workflow input")
	otlpEndpoint := flag.String("otlp-endpoint", telemetry.EndpointFromEnv(), "OTLP endpoint; empty prints spans to stdout")
	flag.Parse()

	if *path == "" {
		log.Fatal("flowctl: -workflow is required")
	}

	ctx := context.Background()
	shutdown, err := telemetry.InitProvider(ctx, "flowctl", *otlpEndpoint)
	if err != nil {
		log.Fatalf("flowctl: telemetry init: %v", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Printf("flowctl: telemetry shutdown: %v", err)
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Fatalf("flowctl: telemetry metrics: %v", err)
	}

	raw, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("flowctl: reading workflow file: %v", err)
	}

	var def workflowmodel.WorkflowDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		log.Fatalf("flowctl: parsing workflow: %v", err)
	}

	var input interface{}
	if err := json.Unmarshal([]byte(*inputJSON), &input); err != nil {
		log.Fatalf("flowctl: parsing -input: %v", err)
	}

	registry := agentregistry.NewStaticRegistry(
		nil,
		agentregistry.StaticHostLister{{Name: "default", SystemPrompt: "You are a helpful assistant."}},
	)
	sessions := sessionstore.NewInMemory()

	engine := flowcore.New(registry, sessions, flowcore.WithMetrics(metrics))
	result := engine.Execute(ctx, &def, input)

	enc, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("flowctl: encoding result: %v", err)
	}
	fmt.Println(string(enc))

	if result.Err != nil {
		os.Exit(1)
	}
}
