package status

import (
	"html/template"
)

type statusTemplateAttempt struct {
	Time        string
	Path        string
	Generation  string
	SerialIndex int
	Stage       string
	Files       int
	Failed      bool
	Error       string
}

type statusTemplateData struct {
	Version      string
	Attempts     []statusTemplateAttempt
	AttemptCount int
	Log          string

	CSRFField template.HTML
}

const templateString = `
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no">
  <title>rpibootd status</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", "Roboto", "Helvetica Neue", Arial, sans-serif;
    }

    h1 {
      font-size: 32px;
    }

    p {
      color: #858585;
    }

    .inner-container {
      max-width: 1024px;
      margin: 0 auto;
      text-align: center;
    }

    .badge {
      display: inline-block;
      padding: 6px 10px;
      border: 1px solid #c51a4a;
      border-radius: 4px;
      color: #c51a4a;
    }

    table {
      margin: 20px auto;
      border-collapse: collapse;
    }

    td, th {
      border-bottom: 1px solid lightgray;
      padding: 6px 12px;
      text-align: left;
    }

    .failed {
      color: darkred;
    }

    .space-top {
      margin-top: 34px;
    }

    .btn-primary {
      display: inline-block;
      padding: 10px 40px;
      background-color: #c51a4a;
      color: white;
      border-radius: 4px;
    }

    textarea {
      max-width: 900px;
    }
  </style>
</head>

<body>
  <div class="inner-container">
    <h1>rpibootd status</h1>
    <span class="badge">Version: {{.Version}}</span>

    <p class="space-top">Boot attempts: {{.AttemptCount}}</p>
    {{if .Attempts}}
    <table>
      <tr><th>Time</th><th>Path</th><th>Chip</th><th>Serial index</th><th>Stage</th><th>Files</th><th>Result</th></tr>
      {{range .Attempts}}
      <tr{{if .Failed}} class="failed"{{end}}>
        <td>{{.Time}}</td>
        <td>{{.Path}}</td>
        <td>{{.Generation}}</td>
        <td>{{.SerialIndex}}</td>
        <td>{{.Stage}}</td>
        <td>{{.Files}}</td>
        <td>{{if .Failed}}{{.Error}}{{else}}ok{{end}}</td>
      </tr>
      {{end}}
    </table>
    {{end}}

    <div class="space-top">
      <p>Console Log</p>
      <textarea rows="25" cols="150" id="log">
{{.Log}}
      </textarea>
      <form method="post" action="/status/log.gz">
        {{.CSRFField}}
        <button class="btn-primary" type="submit">Download detailed log</button>
      </form>
    </div>

    <div class="space-top">
      <a href="/status/"><div class="btn-primary">Refresh page</div></a>
    </div>
  </div>
</body>
</html>
`

var statusTemplate = template.Must(template.New("status").Parse(templateString))
