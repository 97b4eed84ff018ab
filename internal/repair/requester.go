package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mend/internal/diagnostic"
	"mend/internal/llm"
	"mend/internal/logging"
)

// ErrMalformedResponse marks a service reply with no extractable code block.
// Consumed against the attempt budget; the service is asked again next cycle.
var ErrMalformedResponse = errors.New("reasoning service returned no usable code block")

const systemPrompt = `You are an expert C++ Build Agent. A native build failed and you repair it
one file at a time. Respond with the COMPLETE corrected content of exactly one
file inside a single fenced code block. Keep the existing logic and style; do
not add explanations inside the code.`

const compileInstruction = `This is a COMPILATION ERROR.
Fix the syntax/logic error in the target file below and return its full
corrected content.`

const linkerInstruction = `This is a LINKER ERROR (undefined symbol). The symbol is likely declared but
NOT implemented. Implement the missing function in the target file below and
return the file's full content including the new definition.`

// Requester packs a repair context into a service request and parses the
// reply into a candidate whole-file replacement.
type Requester struct {
	client llm.Client

	// maxRequestBytes bounds the packed prompt. When exceeded, related
	// excerpts are dropped from the end (least-recently-included first)
	// until it fits.
	maxRequestBytes int
}

// NewRequester wires a requester to a reasoning-service client. maxRequest
// bounds the packed prompt size in bytes; zero selects a default sized for
// an 8k-token context window.
func NewRequester(client llm.Client, maxRequest int) *Requester {
	if maxRequest <= 0 {
		maxRequest = 24 * 1024
	}
	return &Requester{client: client, maxRequestBytes: maxRequest}
}

// Request sends the repair context and returns the candidate replacement
// content for rc.TargetFile.
func (r *Requester) Request(ctx context.Context, rc *Context) (string, error) {
	excerpts := rc.RelatedExcerpts
	prompt := buildPrompt(rc, excerpts)

	for len(prompt) > r.maxRequestBytes && len(excerpts) > 0 {
		dropped := excerpts[len(excerpts)-1]
		excerpts = excerpts[:len(excerpts)-1]
		logging.RepairDebug("dropping excerpt %s to fit request budget", dropped.Path)
		prompt = buildPrompt(rc, excerpts)
	}

	logging.Repair("requesting repair for %s (%d bytes, %d excerpts)",
		rc.TargetFile, len(prompt), len(excerpts))

	response, err := r.client.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}

	code, ok := extractCodeBlock(response)
	if !ok {
		return "", fmt.Errorf("%w (%d bytes of prose)", ErrMalformedResponse, len(response))
	}
	return code, nil
}

func buildPrompt(rc *Context, excerpts []Excerpt) string {
	var sb strings.Builder

	if rc.Diagnostic.Kind == diagnostic.KindLinker {
		sb.WriteString(linkerInstruction)
	} else {
		sb.WriteString(compileInstruction)
	}
	sb.WriteString("\n\n## Diagnostic\n")
	sb.WriteString(rc.Diagnostic.String())
	sb.WriteString("\n")

	if hint := rc.SymbolHint; hint != nil {
		fmt.Fprintf(&sb, "\nMissing symbol: %s\n", hint.SymbolName)
		if hint.DeclaringFile != "" {
			fmt.Fprintf(&sb, "Declared at %s:%d with no definition found in the project.\n",
				hint.DeclaringFile, hint.DeclaringLine)
		} else {
			sb.WriteString("No declaration found in project sources; the symbol may belong to a library missing from the link configuration.\n")
		}
	}

	fmt.Fprintf(&sb, "\n## Target file: %s\n```\n%s\n```\n", rc.TargetFile, rc.OriginalContent)

	for _, e := range excerpts {
		fmt.Fprintf(&sb, "\n## Related file: %s\n```\n%s\n```\n", e.Path, e.Content)
	}

	sb.WriteString("\nReturn the complete corrected target file in one fenced code block.")
	return sb.String()
}

// extractCodeBlock pulls the replacement content out of the reply. Any prose
// around a single fenced block is discarded; a language tag on the fence line
// is stripped.
func extractCodeBlock(response string) (string, bool) {
	first := strings.Index(response, "```")
	if first < 0 {
		return "", false
	}
	rest := response[first+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	block := rest[:end]

	// Drop the language tag line (```cpp, ```c++, bare ```).
	if nl := strings.Index(block, "\n"); nl >= 0 {
		tag := strings.TrimSpace(block[:nl])
		if tag == "" || isLanguageTag(tag) {
			block = block[nl+1:]
		}
	}

	code := strings.TrimRight(block, "\n") + "\n"
	if strings.TrimSpace(code) == "" {
		return "", false
	}
	return code, true
}

func isLanguageTag(tag string) bool {
	for _, r := range tag {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '#'
		if !ok {
			return false
		}
	}
	return true
}
