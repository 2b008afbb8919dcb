package pipeline

import (
	"context"
	"strings"

	"github.com/malbeclabs/mindlake/pkg/docindex"
)

// retrieve asks the document index for a candidate answer. The second return
// value is false when no usable candidate was produced.
func (p *Pipeline) retrieve(ctx context.Context, question string) (docindex.Answer, bool) {
	start := p.cfg.Clock.Now()
	ans, err := p.cfg.DocumentIndex.Answer(ctx, question)
	oracleCallDuration.WithLabelValues("retrieve", statusLabel(err)).Observe(p.cfg.Clock.Since(start).Seconds())
	if err != nil {
		p.log.Info("pipeline: retrieval failed, falling through", "error", err)
		return docindex.Answer{}, false
	}
	if strings.TrimSpace(ans.Text) == "" {
		p.log.Info("pipeline: retrieval returned empty answer, falling through")
		return docindex.Answer{}, false
	}
	return ans, true
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
