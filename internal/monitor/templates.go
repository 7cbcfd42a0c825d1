package monitor

// pageTemplate is the monitor dashboard. New cards arrive over the
// /fetch-stream/html event stream and are prepended by htmx.
const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Maplink Monitor</title>
    <script src="https://unpkg.com/htmx.org@1.9.12"></script>
    <script src="https://unpkg.com/htmx.org@1.9.12/dist/ext/sse.js"></script>
    <style>
        :root {
            --bg: #0f172a;
            --card: #1e293b;
            --border: #334155;
            --text: #e2e8f0;
            --muted: #94a3b8;
            --success: #22c55e;
            --failure: #f59e0b;
            --error: #ef4444;
        }
        * { box-sizing: border-box; }
        body {
            margin: 0;
            padding: 24px;
            background: var(--bg);
            color: var(--text);
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
        }
        h1 { font-size: 1.4rem; margin: 0 0 16px; }
        h2 { font-size: 1.1rem; margin: 24px 0 8px; color: var(--muted); }
        table { width: 100%; border-collapse: collapse; margin-bottom: 16px; }
        th, td { padding: 6px 10px; border-bottom: 1px solid var(--border); text-align: left; }
        th { color: var(--muted); font-weight: 500; }
        .card {
            background: var(--card);
            border: 1px solid var(--border);
            border-left: 4px solid var(--muted);
            border-radius: 6px;
            padding: 10px 14px;
            margin-bottom: 8px;
        }
        .card.success { border-left-color: var(--success); }
        .card.failure { border-left-color: var(--failure); }
        .card.error { border-left-color: var(--error); }
        .card header { display: flex; gap: 12px; align-items: baseline; }
        .card .name { font-weight: 600; }
        .card .meta { color: var(--muted); font-size: 0.85rem; }
        details pre {
            max-height: 320px;
            overflow: auto;
            background: var(--bg);
            padding: 8px;
            border-radius: 4px;
            font-size: 0.8rem;
        }
    </style>
</head>
<body>
    <h1>Maplink Monitor</h1>

    <h2>Latency</h2>
    {{if .Stats}}
    <table>
        <tr><th>Name</th><th>Count</th><th>Outcomes</th><th>Mean</th><th>p50</th><th>p90</th><th>p99</th><th>Max</th></tr>
        {{range .Stats}}
        <tr>
            <td>{{.Name}}</td>
            <td>{{.Count}}</td>
            <td>{{outcomes .ByType}}</td>
            <td>{{formatLatency .Mean}}</td>
            <td>{{formatLatency .P50}}</td>
            <td>{{formatLatency .P90}}</td>
            <td>{{formatLatency .P99}}</td>
            <td>{{formatLatency .Max}}</td>
        </tr>
        {{end}}
    </table>
    {{else}}
    <p class="meta">No fetches yet.</p>
    {{end}}

    <h2>Callbacks</h2>
    {{if .Callbacks}}
    <table>
        <tr><th>Job</th><th>Type</th><th>Description</th><th>Time</th></tr>
        {{range .Callbacks}}
        <tr><td>{{.JobID}}</td><td>{{.Type}}</td><td>{{.Description}}</td><td>{{formatTime .Time}}</td></tr>
        {{end}}
    </table>
    {{else}}
    <p class="meta">No callbacks yet.</p>
    {{end}}

    <h2>Fetches</h2>
    <div id="events" hx-ext="sse" sse-connect="{{.StreamURL}}" sse-swap="fetch" hx-swap="afterbegin">
        {{range .Events}}{{template "card" .}}{{end}}
    </div>
</body>
</html>
`

// cardTemplate renders one fetch event.
const cardTemplate = `{{define "card"}}<div class="card {{.Data.Response.Type}}" id="fetch-{{.ID}}">
<header>
<span class="name">{{.Name}}</span>
<span>{{.Data.Request.Method}} {{.Data.Request.URL}}</span>
<span class="meta">{{.Data.Response.Code}} {{.Data.Response.Status}}</span>
<span class="meta">{{.Data.Duration}}ms</span>
{{if .Data.JobID}}<span class="meta">job {{.Data.JobID}}</span>{{end}}
<span class="meta">{{formatTime .Data.Timestamp}}</span>
</header>
{{if .Data.Request.Body}}<details><summary>Request</summary><pre>{{toJSON .Data.Request.Body}}</pre></details>{{end}}
{{if .Data.Response.Data}}<details><summary>Response</summary><pre>{{toJSON .Data.Response.Data}}</pre></details>{{end}}
</div>{{end}}`
