// Command h2server runs a plaintext HTTP/2 server exercising the core
// engine end to end, the way examples/simple/main.go demonstrated the
// original fasthttp-bound server.
package main

import (
	"log"
	"net"
	"strings"
	"time"

	http2 "github.com/tildepoint/h2engine"
)

func main() {
	ln, err := net.Listen("tcp", ":8443")
	if err != nil {
		log.Fatalln(err)
	}

	srv := &http2.Server{
		IdleTimeout: 10 * time.Second,
	}
	srv.Handle("/long", longHandler)
	srv.Handle("/", rootHandler)

	log.Println("listening on :8443")
	if err := srv.Serve(ln); err != nil {
		log.Fatalln(err)
	}
}

func rootHandler(r *http2.Request) *http2.Response {
	if r.Method == "POST" {
		return &http2.Response{Status: 200, Body: append([]byte(nil), r.Body...)}
	}
	return &http2.Response{Status: 200, Body: []byte("Hello 21th century!\n")}
}

func longHandler(r *http2.Request) *http2.Response {
	return &http2.Response{Status: 200, Body: []byte(strings.Repeat("A", 1<<16))}
}
