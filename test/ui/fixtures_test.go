package ui

import (
	"fmt"
	"net/http"
	"net/url"
)

const loginHTML = `<!doctype html>
<html><head><title>Sign in</title></head>
<body>
<form action="/welcome" method="get">
  <label for="username">User</label>
  <input id="username" name="username" placeholder="name">
  <input name="password" type="password">
  <button type="submit">Sign in</button>
</form>
</body></html>`

const slowHTML = `<!doctype html>
<html><head><title>Slow</title></head>
<body>
<div class="spinner">loading</div>
<div id="slot"></div>
<script>
setTimeout(function() {
  document.querySelector('.spinner').remove();
  var d = document.createElement('div');
  d.id = 'late';
  d.textContent = 'ready now';
  document.getElementById('slot').appendChild(d);
}, 700);
</script>
</body></html>`

const rerenderHTML = `<!doctype html>
<html><head><title>Rerender</title></head>
<body>
<div id="host"><button id="counter" onclick="bump()">0</button></div>
<script>
var clicks = 0;
function bump() {
  clicks++;
  // replace the node so earlier references go stale
  document.getElementById('host').innerHTML =
    '<button id="counter" onclick="bump()">' + clicks + '</button>';
}
</script>
</body></html>`

const formsHTML = `<!doctype html>
<html><head><title>Forms</title></head>
<body>
<select id="colour">
  <option value="r">Red</option>
  <option value="g" selected>Green</option>
  <option value="b">Blue</option>
</select>
<select id="toppings" multiple>
  <option value="ch">Cheese</option>
  <option value="ol">Olives</option>
  <option value="mu">Mushroom</option>
</select>
<input type="checkbox" id="agree">
<table id="people">
  <thead><tr><th>Name</th><th>Role</th></tr></thead>
  <tbody>
    <tr><td>Ada</td><td>Engineer</td></tr>
    <tr><td>Grace</td><td>Admiral</td></tr>
  </tbody>
</table>
<a href="/report" target="_blank">Open report</a>
</body></html>`

const reportHTML = `<!doctype html>
<html><head><title>Quarterly report</title></head>
<body><h1>Report</h1></body></html>`

func fixtureMux() *http.ServeMux {
	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/login", page(loginHTML))
	mux.HandleFunc("/slow", page(slowHTML))
	mux.HandleFunc("/rerender", page(rerenderHTML))
	mux.HandleFunc("/forms", page(formsHTML))
	mux.HandleFunc("/report", page(reportHTML))
	mux.HandleFunc("/welcome", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		name := url.QueryEscape(r.URL.Query().Get("username"))
		fmt.Fprintf(w, `<!doctype html><html><head><title>Welcome</title></head><body><h1>Hello %s</h1></body></html>`, name)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	return mux
}
