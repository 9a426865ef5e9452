package server

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dyike/tsladash/internal/chart"
	"github.com/dyike/tsladash/internal/llm"
)

const echartsAsset = "https://go-echarts.github.io/go-echarts-assets/assets/echarts.min.js"

var pageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Symbol}} Dashboard</title>
<script src="{{.Asset}}"></script>
<style>
body { font-family: sans-serif; margin: 2rem; }
.error { color: #b00020; }
.ok { color: #1b7f3b; }
#answer { white-space: pre-wrap; margin-top: 1rem; }
</style>
</head>
<body>
<h1>📈 {{.Symbol}} Trading Dashboard</h1>
{{if .Error}}
<p class="error">⚠️ Could not load or process the {{.DataFile}} file: {{.Error}}</p>
{{else}}
<p class="ok">✅ Data loaded successfully.</p>
<p id="stats">{{.Stats}}</p>
<p>LONG: {{.Long}} · SHORT: {{.Short}} · NEUTRAL: {{.Neutral}}</p>
{{.Element}}
{{.Script}}
<details open>
<summary>🤖 Ask Gemini AI</summary>
<form id="ask">
<select id="samples">
{{range .Samples}}<option>{{.}}</option>
{{end}}</select>
<input id="question" name="question" size="60" placeholder="Type a question or pick a sample">
<button type="submit">Ask AI</button>
</form>
<div id="answer"></div>
</details>
{{end}}
<script>
const samples = document.getElementById("samples");
const question = document.getElementById("question");
if (samples) {
  question.value = samples.value;
  samples.addEventListener("change", () => { question.value = samples.value; });
  document.getElementById("ask").addEventListener("submit", async (e) => {
    e.preventDefault();
    const out = document.getElementById("answer");
    out.textContent = "Thinking...";
    const resp = await fetch("/api/ask", {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify({question: question.value}),
    });
    const body = await resp.json();
    out.className = resp.ok ? "" : "error";
    out.textContent = body.answer || body.error;
  });
}
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (m) => { if (JSON.parse(m.data).type === "reload") location.reload(); };
</script>
</body>
</html>
`))

type pageData struct {
	Symbol   string
	Asset    string
	DataFile string
	Error    string
	Stats    string
	Long     int
	Short    int
	Neutral  int
	Element  template.HTML
	Script   template.HTML
	Samples  []string
}

func (s *Server) handleIndex(c *gin.Context) {
	cfg := s.dash.Config()
	data := pageData{
		Symbol:   cfg.Ticker,
		Asset:    echartsAsset,
		DataFile: cfg.DataFile,
		Samples:  llm.SampleQuestions(cfg.Ticker),
	}

	snap, err := s.dash.Snapshot()
	if err != nil {
		data.Error = err.Error()
	} else {
		sum := snap.Summary
		data.Stats = sum.Stats()
		data.Long, data.Short, data.Neutral = sum.Long, sum.Short, sum.Neutral

		// The snippet is produced by the chart library from our own series.
		snippet := chart.Snippet(snap.Bars, s.chartOptions())
		data.Element = template.HTML(snippet.Element)
		data.Script = template.HTML(snippet.Script)
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := pageTemplate.Execute(c.Writer, data); err != nil {
		s.log.WithError(err).Error("render page")
	}
}
