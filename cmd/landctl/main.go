// landctl 代替 CRUD 服务向 LandEvents 推一条地块字段变更，开发联调用。
//
//	landctl -addr 127.0.0.1:9098 -x 3 -y 4 -field land_id -value '"L-3-4"'
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	rpc "LandVerse/internal/shared/transport/grpc"
	"LandVerse/modules/kit/tracex"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9098", "LandEvents 地址")
	x := flag.Int("x", 0, "地块 x")
	y := flag.Int("y", 0, "地块 y")
	field := flag.String("field", "", "字段名")
	value := flag.String("value", "null", "字段值，JSON 字面量")
	timeout := flag.Duration("timeout", 5*time.Second, "请求超时")
	flag.Parse()

	if err := run(*addr, *x, *y, *field, *value, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "landctl:", err)
		os.Exit(1)
	}
}

func run(addr string, x, y int, field, raw string, timeout time.Duration) error {
	if field == "" {
		return fmt.Errorf("-field is required")
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fmt.Errorf("-value is not JSON: %w", err)
	}

	conn, client, err := rpc.DialLandEvents(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = tracex.WithTraceID(ctx, tracex.NewTraceID())
	if err := client.Publish(ctx, x, y, field, v); err != nil {
		return err
	}
	fmt.Printf("published (%d,%d) %s=%s\n", x, y, field, raw)
	return nil
}
