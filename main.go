package main

import (
	"github.com/shouni/go-index-watch/cmd"
)

// main 関数は cmd.Execute に処理を委譲します。
// エラーハンドリングと終了コードの管理は clibase 側で一元化されています。
func main() {
	cmd.Execute()
}
