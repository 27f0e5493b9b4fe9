package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spiritualconnect/internal/auth"
	"spiritualconnect/internal/chatclient"
	"spiritualconnect/internal/logger"
	"spiritualconnect/internal/models"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

func main() {
	parseFlags()

	if err := logger.Initialize(flagLogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(2)
	}
	defer logger.Log.Sync()

	if flagUserID <= 0 || flagPeerID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: chatcli -user <id> -peer <id> [-token <jwt> | -secret <jwt secret>]")
		os.Exit(2)
	}

	token := flagToken
	if token == "" && flagSecret != "" {
		issued, err := auth.NewTokenService(flagSecret, "spiritualconnect").Issue(flagUserID, flagUserName, 12*time.Hour)
		if err != nil {
			logger.Log.Fatal("failed to sign token", zap.Error(err))
		}
		token = issued
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl := chatclient.New(chatclient.Config{
		ServerURL: flagServerURL,
		Token:     token,
		UserID:    flagUserID,
	}, chatclient.Handlers{
		OnMessage: func(m models.Message) {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), senderLabel(m), m.Content)
		},
		OnPresence: func(users []models.OnlineUser) {
			names := lo.Map(users, func(u models.OnlineUser, _ int) string {
				if u.Name != "" {
					return u.Name
				}
				return fmt.Sprintf("#%d", u.ID)
			})
			fmt.Printf("* online: %v\n", names)
		},
		OnSendError: func(e models.SendError) {
			fmt.Printf("! not sent (%s): %s\n", e.ClientMsgID, e.Message)
		},
		OnError: func(e models.ErrorEvent) {
			fmt.Printf("! %s\n", e.Message)
		},
	}, logger.Named("chatcli"))

	go func() {
		if err := ctl.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Error("connection loop stopped", zap.Error(err))
		}
	}()

	room, history, err := ctl.OpenConversation(ctx, flagPeerID)
	if err != nil {
		logger.Log.Fatal("failed to open conversation", zap.Error(err))
	}
	fmt.Printf("* room %s, %d earlier messages\n", room, len(history))
	for _, m := range history {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), senderLabel(*m), m.Content)
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := ctl.Send(ctx, room, line); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}
}

func senderLabel(m models.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return fmt.Sprintf("#%d", m.SenderID)
}
