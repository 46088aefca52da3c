package www

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"bond/journal"
	"bond/queue"
)

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta http-equiv="refresh" content="5">
<title>bond</title>
<script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-100">
<div class="container mx-auto px-4 py-8 space-y-6">
<h1 class="text-3xl font-bold">bond</h1>
`

const pageFoot = `</div>
</body>
</html>
`

// StatusPage renders queue depth, pending confirmations and recent
// activity at request time.
func StatusPage(q *queue.Queue, p Pipeline) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		entries, err := p.Journal().Recent(ctx, 20)
		if err != nil {
			return fmt.Errorf("failed to read activity: %w", err)
		}

		pw := &pageWriter{w: w}
		pw.raw(pageHead)
		pw.printf(`<p class="text-gray-600">Sentences waiting: %d</p>`, q.Len())

		pw.raw(`<section><h2 class="text-xl font-semibold mb-2">Awaiting confirmation</h2><ul class="space-y-2">`)
		pending := p.Gate().Pending()
		if len(pending) == 0 {
			pw.raw(`<li class="text-gray-500">Nothing pending</li>`)
		}
		for _, req := range pending {
			pw.printf(
				`<li class="bg-white shadow rounded-lg p-4"><p class="text-lg">%s</p><p class="text-gray-600 text-sm">%s · %s</p></li>`,
				templ.EscapeString(req.Label),
				templ.EscapeString(req.Sentence),
				req.CreatedAt.Format("15:04:05"),
			)
		}
		pw.raw(`</ul></section>`)

		pw.raw(`<section><h2 class="text-xl font-semibold mb-2">Activity</h2><ul class="space-y-2">`)
		for _, e := range entries {
			pw.printf(
				`<li class="bg-white shadow rounded-lg p-4"><p class="text-gray-600 text-sm">%s</p><p>%s %s</p></li>`,
				e.At.Format("2006-01-02 15:04:05"),
				kindMark(e.Kind),
				templ.EscapeString(activityText(e)),
			)
		}
		pw.raw(`</ul></section>`)
		pw.raw(pageFoot)
		return pw.err
	})
}

func kindMark(k journal.Kind) string {
	switch k {
	case journal.KindExecuted:
		return "✅"
	case journal.KindFailed:
		return "❌"
	default:
		return "➖"
	}
}

func activityText(e journal.Entry) string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%s)", e.Label, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Label, e.Message)
}

// pageWriter keeps the first write error.
type pageWriter struct {
	w   io.Writer
	err error
}

func (p *pageWriter) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *pageWriter) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}
