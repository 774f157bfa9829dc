// Package inference talks to a Hugging Face compatible text-generation backend.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Paranoid-AF/genform/device"
)

// TaskTextGeneration is the only task NewPipeline accepts.
const TaskTextGeneration = "text-generation"

// Params are the per-call generation parameters.
type Params struct {
	// MaxLength caps the total sequence length, prompt included.
	MaxLength          int
	NumReturnSequences int
}

// Result is one generated candidate.
type Result struct {
	GeneratedText string `json:"generated_text"`
}

// Handle is a loaded text-generation model.
type Handle interface {
	Generate(ctx context.Context, prompt string, p Params) ([]Result, error)
}

// DefaultHubCheckTimeout bounds the model lookup done by NewPipeline.
const DefaultHubCheckTimeout = 30 * time.Second

// Options configure the backend a Pipeline talks to.
type Options struct {
	APIBaseURL string
	HubBaseURL string
	Token      string
	// Client has no timeout by default. Generate runs until the backend
	// answers or ctx is done.
	Client *http.Client
	// HubCheckTimeout bounds only the model lookup; zero means
	// DefaultHubCheckTimeout.
	HubCheckTimeout time.Duration
}

// Pipeline is a Handle backed by the inference API.
type Pipeline struct {
	model     string
	tokenizer string
	device    device.Selector
	apiURL    string
	token     string
	client    *http.Client
}

// NewPipeline verifies that model is reachable on the hub with the given
// token and returns a Pipeline bound to it.
func NewPipeline(ctx context.Context, task, model, tokenizer string, dev device.Selector, opts Options) (*Pipeline, error) {
	if task != TaskTextGeneration {
		return nil, fmt.Errorf("unsupported task %q", task)
	}
	if model == "" {
		return nil, fmt.Errorf("model identifier is empty")
	}
	if tokenizer != "" && tokenizer != model {
		return nil, fmt.Errorf("tokenizer %q differs from model %q; the hosted backend uses the model's own tokenizer", tokenizer, model)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	p := &Pipeline{
		model:     model,
		tokenizer: model,
		device:    dev,
		apiURL:    opts.APIBaseURL + "/models/" + model,
		token:     opts.Token,
		client:    client,
	}
	if opts.HubBaseURL != "" {
		timeout := opts.HubCheckTimeout
		if timeout <= 0 {
			timeout = DefaultHubCheckTimeout
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := p.checkModel(checkCtx, opts.HubBaseURL); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Model returns the bound model identifier.
func (p *Pipeline) Model() string { return p.model }

// Tokenizer returns the bound tokenizer identifier.
func (p *Pipeline) Tokenizer() string { return p.tokenizer }

// Device returns the device the pipeline was bound to.
func (p *Pipeline) Device() device.Selector { return p.device }

type modelInfo struct {
	ID          string `json:"id"`
	PipelineTag string `json:"pipeline_tag"`
}

func (p *Pipeline) checkModel(ctx context.Context, hubURL string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", hubURL+"/api/models/"+p.model, nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("access to %s denied (status %d): check huggingface.token", p.model, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("model %s not found", p.model)
	default:
		return fmt.Errorf("hub error (status %d): %s", resp.StatusCode, string(body))
	}

	var info modelInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("failed to parse model info: %w (body: %s)", err, string(body))
	}
	if info.PipelineTag != "" && info.PipelineTag != TaskTextGeneration {
		return fmt.Errorf("model %s is a %s model, not %s", p.model, info.PipelineTag, TaskTextGeneration)
	}
	return nil
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
	Options    generateOptions    `json:"options"`
}

type generateParameters struct {
	MaxLength          int  `json:"max_length,omitempty"`
	NumReturnSequences int  `json:"num_return_sequences,omitempty"`
	ReturnFullText     bool `json:"return_full_text"`
}

type generateOptions struct {
	UseGPU       bool `json:"use_gpu"`
	WaitForModel bool `json:"wait_for_model"`
}

type apiError struct {
	Error string `json:"error"`
}

// Generate sends prompt to the backend and returns the generated candidates.
func (p *Pipeline) Generate(ctx context.Context, prompt string, params Params) ([]Result, error) {
	reqBody := generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxLength:          params.MaxLength,
			NumReturnSequences: params.NumReturnSequences,
			ReturnFullText:     true,
		},
		Options: generateOptions{
			UseGPU:       p.device == device.Accelerator,
			WaitForModel: true,
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.apiURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 200 {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error != "" {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, ae.Error)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var results []Result
	if err := json.Unmarshal(body, &results); err != nil {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error != "" {
			return nil, fmt.Errorf("API error: %s", ae.Error)
		}
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	return results, nil
}

func (p *Pipeline) setHeaders(req *http.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
}
