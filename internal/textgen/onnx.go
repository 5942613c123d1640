package textgen

import (
	"context"
	"fmt"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXGenerator runs greedy decoding over a causal language model exported
// to ONNX with input_ids and attention_mask inputs and a logits output.
type ONNXGenerator struct {
	tokenizer *tokenizers.Tokenizer
	session   *ort.DynamicAdvancedSession
	eos       int64
	mu        sync.Mutex
}

// NewONNXGenerator loads the tokenizer and model. libPath may be empty when
// onnxruntime is on the system library path.
func NewONNXGenerator(libPath, modelPath, tokenizerPath string, eos int64) (*ONNXGenerator, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
		}
	}

	tk, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		nil)
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNXGenerator{tokenizer: tk, session: session, eos: eos}, nil
}

// Generate decodes greedily until EOS or the token budget is spent and
// returns prompt plus continuation with special tokens removed.
func (g *ONNXGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ids, _ := g.tokenizer.Encode(prompt, true)
	if len(ids) == 0 {
		return "", fmt.Errorf("prompt encodes to no tokens")
	}

	tokens := make([]int64, len(ids))
	for i, id := range ids {
		tokens[i] = int64(id)
	}

	newTokens := opts.MaxNewTokens
	if newTokens == 0 {
		newTokens = opts.MaxLength - len(tokens)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tokens, err := greedyDecode(ctx, tokens, newTokens, g.eos, g.nextToken)
	if err != nil {
		return "", err
	}

	out := make([]uint32, len(tokens))
	for i, t := range tokens {
		out[i] = uint32(t)
	}
	return g.tokenizer.Decode(out, true), nil
}

// nextToken runs one forward pass and returns the argmax of the last position.
func (g *ONNXGenerator) nextToken(tokens []int64) (int64, error) {
	shape := ort.NewShape(1, int64(len(tokens)))

	inputIDs, err := ort.NewTensor(shape, tokens)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attention := make([]int64, len(tokens))
	for i := range attention {
		attention[i] = 1
	}
	mask, err := ort.NewTensor(shape, attention)
	if err != nil {
		return 0, fmt.Errorf("failed to create mask tensor: %w", err)
	}
	defer mask.Destroy()

	outputs := []ort.Value{nil}
	if err := g.session.Run([]ort.Value{inputIDs, mask}, outputs); err != nil {
		return 0, fmt.Errorf("failed to run inference: %w", err)
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected logits type %T", outputs[0])
	}
	dims := logits.GetShape()
	if len(dims) != 3 {
		return 0, fmt.Errorf("unexpected logits shape %v", dims)
	}
	vocab := int(dims[2])
	data := logits.GetData()
	return argmax(data[len(data)-vocab:]), nil
}

// greedyDecode appends up to limit tokens chosen by next, stopping after eos.
func greedyDecode(ctx context.Context, tokens []int64, limit int, eos int64, next func([]int64) (int64, error)) ([]int64, error) {
	for step := 0; step < limit; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		token, err := next(tokens)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
		if token == eos {
			break
		}
	}
	return tokens, nil
}

// argmax returns the index of the largest logit; ties go to the lowest index.
func argmax(logits []float32) int64 {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return int64(best)
}

// Close releases the session and tokenizer.
func (g *ONNXGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.session.Destroy()
	g.tokenizer.Close()
	return err
}
