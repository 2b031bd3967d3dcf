package webserver

import (
	"html/template"
	"net/http"
)

type Data struct {
	WebSocketURL string
}

func (m *Manager) dashboardHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		e := Data{
			WebSocketURL: "ws://" + r.Host + "/ws",
		}
		homeTemplate.Execute(w, e)
	}
}

var homeTemplate = template.Must(template.New("").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>apexcoach</title>
  <style>
    body { background: #15171c; color: #d8dce2; font-family: ui-monospace, Menlo, Consolas, monospace; margin: 0; padding: 1rem; }
    h1 { font-size: 1.1rem; margin: 0 0 0.4rem 0; }
    .muted { color: #7a8290; }
    .row { display: flex; gap: 1.5rem; flex-wrap: wrap; }
    .card { background: #1d2027; border: 1px solid #2a2e38; border-radius: 6px; padding: 0.8rem 1rem; margin: 0.5rem 0; }
    .big { font-size: 2.2rem; font-weight: bold; }
    .delta-neg { color: #7ed67e; }
    .delta-pos { color: #e06c6c; }
    .bar { width: 140px; height: 10px; background: #2a2e38; border-radius: 5px; overflow: hidden; }
    .bar > div { height: 100%; width: 0; }
    #throttleBar > div { background: #59b359; }
    #brakeBar > div { background: #c94f4f; }
    table { border-collapse: collapse; font-size: 0.85rem; }
    th, td { padding: 0.2rem 0.7rem; text-align: right; border-bottom: 1px solid #2a2e38; }
    th { color: #7a8290; font-weight: normal; }
    #cues li { list-style: none; margin: 0.15rem 0; }
    #cues { padding: 0; margin: 0; max-height: 14rem; overflow-y: auto; }
    button { background: #2a2e38; color: #d8dce2; border: 1px solid #3a3f4b; border-radius: 4px; padding: 0.3rem 0.8rem; cursor: pointer; }
  </style>
</head>
<body>
  <h1>apexcoach <span id="track" class="muted"></span> <span id="status" class="muted">waiting</span></h1>
  <div class="muted" id="session"></div>
  <div>
    <button onclick="fetch('/api/session/start', {method: 'POST'})">start</button>
    <button onclick="fetch('/api/session/stop', {method: 'POST'})">stop</button>
  </div>

  <div class="row">
    <div class="card">
      <div class="muted">speed / gear</div>
      <div><span id="speed" class="big">0</span> km/h &nbsp; <span id="gear" class="big">N</span></div>
      <div class="muted">throttle</div>
      <div class="bar" id="throttleBar"><div></div></div>
      <div class="muted">brake</div>
      <div class="bar" id="brakeBar"><div></div></div>
    </div>
    <div class="card">
      <div class="muted">delta vs PB</div>
      <div id="delta" class="big">&ndash;</div>
      <div class="muted">lap <span id="lapNumber">0</span> &middot; sector <span id="sector">1</span></div>
    </div>
    <div class="card">
      <div class="muted">coach</div>
      <ul id="cues"></ul>
    </div>
  </div>

  <div class="row">
    <div class="card">
      <div class="muted">laps</div>
      <table>
        <thead><tr><th>lap</th><th>time</th><th>s1</th><th>s2</th><th>s3</th><th></th></tr></thead>
        <tbody id="laps"></tbody>
      </table>
    </div>
    <div class="card">
      <div class="muted">skills</div>
      <table><tbody id="skills"></tbody></table>
    </div>
  </div>

  <script>
    const wsUrl = '{{ .WebSocketURL }}';

    const socket = new WebSocket(wsUrl);

    // Connection opened event
    socket.addEventListener('open', (event) => {
      console.log('WebSocket connection opened:', event);
      socket.send("start");
    });

    // Listen for messages from the server
    socket.addEventListener('message', (event) => {
      const msg = JSON.parse(event.data);
      if (msg.type === 'live') {
        updateLive(msg.body);
      } else if (msg.type === 'snapshot') {
        updateSnapshot(msg.body);
      }
    });

    socket.addEventListener('close', (event) => {
      document.getElementById('status').textContent = 'disconnected';
    });

    function fmtTime(t) {
      if (t == null || t <= 0) return '-';
      const m = Math.floor(t / 60);
      const s = (t - m * 60).toFixed(3);
      return m + ':' + (s < 10 ? '0' : '') + s;
    }

    function updateLive(live) {
      document.getElementById('speed').textContent = Math.round(live.speed);
      document.getElementById('gear').textContent = live.gear > 0 ? live.gear : (live.gear < 0 ? 'R' : 'N');
      document.getElementById('lapNumber').textContent = live.lapNumber;
      document.getElementById('sector').textContent = live.sector;
      document.querySelector('#throttleBar > div').style.width = (live.throttle * 100) + '%';
      document.querySelector('#brakeBar > div').style.width = (live.brake * 100) + '%';

      const delta = document.getElementById('delta');
      if (live.deltaVsPB == null) {
        delta.textContent = '–';
        delta.className = 'big';
      } else {
        delta.textContent = (live.deltaVsPB >= 0 ? '+' : '') + live.deltaVsPB.toFixed(3);
        delta.className = 'big ' + (live.deltaVsPB <= 0 ? 'delta-neg' : 'delta-pos');
      }
    }

    const cueColors = {
      'personal_best': '#b870e0',
      'sector': '#7ec8e0',
      'braking': '#e0883a',
      'crash': '#d64545',
      'invalid': '#d64545',
    };

    function updateSnapshot(snap) {
      document.getElementById('track').textContent = snap.trackName || '';
      document.getElementById('status').textContent = snap.active ? 'live' : 'idle';
      document.getElementById('session').textContent = snap.sessionId || '';

      const cues = document.getElementById('cues');
      cues.innerHTML = '';
      for (const cue of (snap.recentCues || []).slice().reverse()) {
        const li = document.createElement('li');
        li.textContent = cue.text;
        li.style.color = cueColors[cue.category] || '#d8dce2';
        cues.appendChild(li);
      }

      const laps = document.getElementById('laps');
      laps.innerHTML = '';
      for (const lap of (snap.laps || [])) {
        const tr = document.createElement('tr');
        const note = lap.isPB ? 'PB' : (lap.valid ? '' : lap.invalidReason || 'invalid');
        tr.innerHTML = '<td>' + lap.lapNumber + '</td><td>' + fmtTime(lap.totalTime) + '</td><td>' +
          fmtTime(lap.sectorTimes[0]) + '</td><td>' + fmtTime(lap.sectorTimes[1]) + '</td><td>' +
          fmtTime(lap.sectorTimes[2]) + '</td><td>' + note + '</td>';
        if (lap.isPB) tr.style.color = '#b870e0';
        if (!lap.valid) tr.style.color = '#7a8290';
        laps.appendChild(tr);
      }

      const skills = document.getElementById('skills');
      skills.innerHTML = '';
      if (snap.skills) {
        for (const [name, score] of Object.entries(snap.skills)) {
          const tr = document.createElement('tr');
          tr.innerHTML = '<td>' + name + '</td><td>' + score + '</td>';
          skills.appendChild(tr);
        }
      }
    }
  </script>
</body>
</html>
`))
