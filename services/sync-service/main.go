package main

import "github.com/stoik/mailsync/services/sync-service/internal/app"

func main() {
	app.Execute()
}
