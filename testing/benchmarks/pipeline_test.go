package benchmarks

import (
	"context"
	"fmt"
	"strings"
	"testing"

	pipelines "github.com/neuromechanist/openwebui-piplines"
	ptest "github.com/neuromechanist/openwebui-piplines/testing"
)

// Sink variables to prevent compiler optimizations.
var (
	sinkString  string
	sinkStrings []string
	sinkError   error
	sinkConvLen int
)

func conversation(n int) []pipelines.ChatMessage {
	messages := make([]pipelines.ChatMessage, 0, n+1)
	messages = append(messages, pipelines.ChatMessage{Role: pipelines.RoleSystem, Content: pipelines.Text("be brief")})
	for i := 0; i < n; i++ {
		role := pipelines.RoleUser
		if i%2 == 1 {
			role = pipelines.RoleAssistant
		}
		messages = append(messages, pipelines.ChatMessage{Role: role, Content: pipelines.Blocks(pipelines.TextBlock(fmt.Sprintf("turn %d", i)))})
	}
	return messages
}

func BenchmarkPipeline_Execute(b *testing.B) {
	search := ptest.NewSequencedProvider("see https://a.io and https://b.io")
	synth := ptest.NewSequencedProvider("answer [1][2]")
	p := pipelines.New("bench", "Bench", search, synth)
	ctx := context.Background()

	for _, n := range []int{1, 9, 49} {
		messages := conversation(n)
		b.Run(fmt.Sprintf("Turns%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				sinkString, sinkError = p.Execute(ctx, "q", "bench", messages, nil)
			}
		})
	}
}

func BenchmarkPipeline_Parallel(b *testing.B) {
	search := ptest.NewSequencedProvider("see https://a.io")
	synth := ptest.NewSequencedProvider("answer")
	p := pipelines.New("bench-parallel", "Bench", search, synth)
	messages := conversation(5)

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_, _ = p.Execute(ctx, "q", "bench-parallel", messages, nil)
		}
	})
}

func BenchmarkNormalize(b *testing.B) {
	messages := conversation(49)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		conv, err := pipelines.Normalize(messages)
		sinkError = err
		sinkConvLen = conv.Len()
	}
}

func BenchmarkCitations(b *testing.B) {
	var text strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&text, "Source %d is at https://example.com/page/%d, see also https://example.com/page/%d. ", i, i, i%5)
	}
	body := text.String()

	b.Run("Extract", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			sinkStrings = pipelines.ExtractCitations(body)
		}
	})

	citations := pipelines.ExtractCitations(body)
	b.Run("Merge", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			sinkString = pipelines.MergeCitations("answer", citations)
		}
	})
}
