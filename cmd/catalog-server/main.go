// @title 商品目录识别服务 API 文档
// @version 1.0
// @description 上传商品图片，由视觉模型生成商品目录信息
// @host localhost:5001
// @BasePath /
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"product-catalog-server-go/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [引导] 开始启动 catalog-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "catalog-server failed: %v\n", err)
		os.Exit(1)
	}
}
