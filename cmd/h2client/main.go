// Command h2client fires a handful of concurrent requests at an
// h2engine server, the way examples/client/main.go drove concurrent
// requests through the original fasthttp.HostClient binding.
package main

import (
	"fmt"
	"log"
	"os"
	"sync"

	http2 "github.com/tildepoint/h2engine"
)

func main() {
	addr := "127.0.0.1:8443"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	d := &http2.Dialer{Addr: addr}
	cs, err := d.Dial()
	if err != nil {
		log.Fatalln(err)
	}
	defer cs.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := cs.Perform(&http2.Request{Method: "GET", URL: "/"})
			if err != nil {
				log.Println(err)
				return
			}
			fmt.Printf("%d: %d: %s\n", i, resp.Status, resp.Body)
		}(i)
	}
	wg.Wait()
}
