package http

var statusText = map[int]string{
	200: "OK",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	409: "Conflict",
	429: "Too Many Requests",
	500: "Internal Server Error",
}

// codes with a canned page under the document root
var errorPages = map[int]string{
	400: "/400.html",
	403: "/403.html",
	404: "/404.html",
}

// StatusText returns the reason phrase for code, or "" if it is not one
// the server emits.
func StatusText(code int) string {
	return statusText[code]
}
