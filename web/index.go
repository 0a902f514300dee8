package web

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>People counter</title>
<style>
body { font-family: sans-serif; margin: 2em; }
#count { font-size: 3em; font-weight: bold; }
#error { color: #b00; }
img { max-width: 100%; border: 1px solid #ccc; }
</style>
</head>
<body>
<h1>People counter</h1>
<form id="start">
  <label><input type="radio" name="input_mode" value="camera" checked> Camera</label>
  <input name="camera_index" type="number" value="0" min="0">
  <label><input type="radio" name="input_mode" value="file"> File</label>
  <input name="file_path" placeholder="/path/to/video.mp4">
  <label>Threshold <input name="confidence_threshold" type="number" step="0.05" min="0" max="1" value="0.5"></label>
  <button type="submit">Start</button>
  <button type="button" id="stop">Stop</button>
</form>
<p>Status: <span id="status">idle</span></p>
<p>People: <span id="count">0</span></p>
<p id="error"></p>
<img src="/stream.mjpeg" alt="annotated frames">
<script>
const form = document.getElementById('start');
form.addEventListener('submit', async (ev) => {
  ev.preventDefault();
  const data = new FormData(form);
  const body = {input_mode: data.get('input_mode'), confidence_threshold: parseFloat(data.get('confidence_threshold'))};
  if (body.input_mode === 'camera') { body.camera_index = parseInt(data.get('camera_index'), 10); }
  else { body.file_path = data.get('file_path'); }
  const resp = await fetch('/api/start', {method: 'POST', body: JSON.stringify(body)});
  const out = await resp.json();
  document.getElementById('error').textContent = resp.ok ? '' : out.error + (out.guidance ? ': ' + out.guidance : '');
});
document.getElementById('stop').addEventListener('click', () => fetch('/api/stop', {method: 'POST'}));
setInterval(async () => {
  const st = await (await fetch('/api/state')).json();
  document.getElementById('status').textContent = st.status;
  document.getElementById('count').textContent = st.count;
  if (st.last_error) { document.getElementById('error').textContent = st.last_error.message + (st.last_error.guidance ? ': ' + st.last_error.guidance : ''); }
}, 500);
</script>
</body>
</html>
`
