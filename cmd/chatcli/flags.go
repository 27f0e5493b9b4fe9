package main

import (
	"flag"
	"os"
	"strconv"
)

var (
	flagServerURL string
	flagToken     string
	flagSecret    string
	flagUserID    int
	flagUserName  string
	flagPeerID    int
	flagLogLevel  string
)

func parseFlags() {
	flag.StringVar(&flagServerURL, "server", "http://localhost:3001", "chat server base url")
	flag.StringVar(&flagToken, "token", "", "bearer token")
	flag.StringVar(&flagSecret, "secret", "", "sign a short-lived token locally with this JWT secret")
	flag.IntVar(&flagUserID, "user", 0, "your user id")
	flag.StringVar(&flagUserName, "name", "", "display name used when signing a token")
	flag.IntVar(&flagPeerID, "peer", 0, "user id to chat with")
	flag.StringVar(&flagLogLevel, "l", "warn", "log level")
	flag.Parse()

	if env := os.Getenv("CHAT_SERVER_URL"); env != "" {
		flagServerURL = env
	}
	if env := os.Getenv("CHAT_TOKEN"); env != "" && flagToken == "" {
		flagToken = env
	}
	if env := os.Getenv("CHAT_USER_ID"); env != "" && flagUserID == 0 {
		flagUserID, _ = strconv.Atoi(env)
	}
}
