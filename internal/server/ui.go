package server

import (
	"net/http"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleAppJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(appJS))
}

const indexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width,initial-scale=1"/>
  <title>Voice Ask</title>
  <style>
    body { font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Arial; margin: 18px; }
    .row { display:flex; gap:12px; flex-wrap:wrap; align-items:center; }
    .pill { padding: 6px 10px; border: 1px solid #ddd; border-radius: 999px; font-size: 12px; background:#fff; }
    button { padding: 14px 22px; font-size: 18px; border-radius: 12px; border: 1px solid #111; background:#111; color:#fff; cursor:pointer; }
    button:disabled { background:#888; border-color:#888; cursor:default; }
    #status { margin-top: 16px; font-size: 16px; min-height: 1.4em; }
    #status.error { color:#d64545; }
    #status.ok { color:#18a558; }
    .mono { font-family: ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, monospace; }
  </style>
</head>
<body>
  <h2>Voice Ask</h2>

  <div class="row">
    <span class="pill">SSE: <span id="sseStatus" class="mono">connecting…</span></span>
    <span class="pill">State: <span id="state" class="mono">idle</span></span>
  </div>

  <div style="margin-top:16px">
    <button id="startBtn">Ask</button>
  </div>
  <div id="status"></div>

  <script src="/app.js"></script>
</body>
</html>
`

const appJS = `
(function(){
  const sseStatus = document.getElementById('sseStatus');
  const stateEl = document.getElementById('state');
  const btn = document.getElementById('startBtn');
  const statusEl = document.getElementById('status');

  function render(s){
    if (!s) return;
    if (statusEl) {
      statusEl.textContent = s.status || '';
      statusEl.className = s.state === 'failed' ? 'error' : (s.state === 'succeeded' ? 'ok' : '');
    }
    if (stateEl) stateEl.textContent = s.state || '';
    if (btn) {
      btn.disabled = !s.enabled;
      btn.textContent = s.label || 'Ask';
    }
  }

  // no trigger element: the page only shows status
  if (btn) {
    btn.addEventListener('click', async () => {
      btn.disabled = true;
      try {
        const res = await fetch('/api/trigger', { method: 'POST' });
        if (res.status === 202 || res.status === 409) {
          render(await res.json());
          return;
        }
        render({ state: 'failed', status: 'Error: ' + (await res.text()), enabled: true, label: 'Try Again' });
      } catch (e) {
        render({ state: 'failed', status: 'Error: ' + e, enabled: true, label: 'Try Again' });
      }
    });
  }

  // --- SSE ---
  const es = new EventSource('/events');
  es.onopen = () => { if (sseStatus) sseStatus.textContent = 'connected'; };
  es.onerror = () => { if (sseStatus) sseStatus.textContent = 'error / reconnecting…'; };
  es.onmessage = (msg) => {
    try { render(JSON.parse(msg.data)); } catch(e) {}
  };

  fetch('/api/state').then(r => r.ok ? r.json() : null).then(render).catch(() => {});
})();
`
