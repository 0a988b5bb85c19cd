package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。既定のコマンド。
	CommandServe Command = "serve"
	// CommandMigrate は埋め込みSQLでPostgreSQLのスキーマを最新にする。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// distrolessイメージにはcurlが無いため、DockerのHEALTHCHECKから呼ぶ。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はos.Args[1:]の先頭からサブコマンドを決める。
// 空または未知の値はCommandServeとして扱い、2つ目以降の引数は見ない。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandMigrate, CommandHealthcheck:
		return cmd
	default:
		return CommandServe
	}
}

// RequiresConfig は環境変数からの設定読み込みが必要かを返す。
// healthcheckはSERVER_PORTのみを参照する。
func (c Command) RequiresConfig() bool {
	return c != CommandHealthcheck
}
