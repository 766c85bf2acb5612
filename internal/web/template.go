package web

import (
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/mqtt"
	"github.com/sweeney/heater-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"celsius": func(v float64) string {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "n/a"
		}
		return fmt.Sprintf("%.1f °C", logic.Round1(v))
	},
	"amps": func(v float64) string {
		if math.IsNaN(v) {
			return "n/a"
		}
		return fmt.Sprintf("%.2f A", v)
	},
	"clock": func(c logic.ClockTime, set bool) string {
		if !set {
			return "unset"
		}
		return c.String()
	},
	"alertLast": func(m map[logic.FailureCategory]time.Time, cat logic.FailureCategory) string {
		t, ok := m[cat]
		if !ok {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Heater Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.led { display: inline-block; width: 10px; height: 10px; border-radius: 50%; margin-right: 6px; vertical-align: middle; background: #ccc; }
.led.green { background: green; }
.led.orange { background: orange; }
.led.blue { background: #2060ff; }
.led.red { background: red; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
</style>
</head>
<body>
<h1>Heater Controller<span id="live-dot" class="live-dot" title="connecting"></span></h1>

<h2>Heater</h2>
<table>
<tr><th>Status</th><td id="status"><span id="led" class="led {{.LED}}"></span>{{.Status}}</td></tr>
<tr><th>Relay</th><td id="relay">{{.Outcome.Relay}}</td></tr>
<tr><th>Health</th><td id="health">{{.Outcome.Health}}</td></tr>
<tr><th>Mode</th><td id="mode">{{.Outcome.Mode}}</td></tr>
<tr><th>Temperature</th><td id="temperature">{{celsius .Outcome.Temperature}}</td></tr>
<tr><th>Target</th><td id="target">{{celsius .Outcome.Target}}</td></tr>
<tr><th>Current</th><td id="current">{{amps .Outcome.Current}}</td></tr>
</table>

<h2>Schedule</h2>
<table>
<tr><th>AM</th><td>{{celsius .Schedule.AMTemp}} from {{clock .Schedule.AMTime .Schedule.AMTimeSet}}</td></tr>
<tr><th>PM</th><td>{{celsius .Schedule.PMTemp}} from {{clock .Schedule.PMTime .Schedule.PMTimeSet}}</td></tr>
</table>

<h2>Alerts</h2>
<table>
{{range .Categories}}<tr><th>{{.}}</th><td>{{index $.Alerts .}} (last {{alertLast $.LastAlert .}})</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Cycles</th><td>{{.Cycles}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Hysteresis</th><td>{{.Config.Hysteresis}} °C</td></tr>
<tr><th>Latch</th><td>{{.Config.LatchMode}}</td></tr>
<tr><th>Heartbeat</th><td>{{if .Config.HeartbeatSpec}}{{.Config.HeartbeatSpec}}{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/schedule">Schedule</a> | <a href="/api/alerts">Alert history</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var leds = {OFF: "green", ONE_ELEMENT_ON: "orange", BOTH_ELEMENTS_ON: "blue", BOTH_ELEMENTS_BLOWN: "red"};

  function text(id, v) { document.getElementById(id).textContent = v; }
  function celsius(v) { return typeof v === "number" ? v.toFixed(1) + " °C" : "n/a"; }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { dot.className = "live-dot ok"; dot.title = "live"; };
    ws.onclose = function() {
      dot.className = "live-dot err"; dot.title = "offline";
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type !== "outcome") { return; }
        var h = msg.data.heater;
        document.getElementById("status").lastChild.textContent = h.status;
        document.getElementById("led").className = "led " + (leds[h.health] || "off");
        text("relay", h.relay);
        text("health", h.health);
        text("mode", h.mode);
        text("temperature", celsius(h.temperature));
        text("target", celsius(h.target));
        text("current", typeof h.current === "number" ? h.current.toFixed(2) + " A" : "n/a");
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

type pageData struct {
	status.Snapshot
	Uptime     time.Duration
	Status     string
	LED        string
	Categories []logic.FailureCategory
}

func newPageData(snap status.Snapshot) pageData {
	return pageData{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		Status:     mqtt.HeaterStatus(snap.Outcome),
		LED:        status.LEDColor(snap.Outcome.Health),
		Categories: logic.Categories,
	}
}
