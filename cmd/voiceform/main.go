// Command voiceform is the interactive voice client for the form-filling
// voice server. It records from the microphone, streams or batches the
// audio to the server, plays the spoken replies, and mirrors the form
// fields the assistant fills in.
//
// Usage:
//
//	VOICEFORM_SERVER=ws://localhost:8000 go run ./cmd/voiceform/
//
// Flags:
//
//	-server    Voice server base URL (or set VOICEFORM_SERVER)
//	-role      Assistant persona: co-worker, butler, coach
//	-mode      Audio delivery: batch or streaming (default: batch)
//	-backend   Capture backend: portaudio or mock (default: portaudio)
//	-playback  Playback backend: portaudio or mock (default: portaudio)
//
// Interactive commands:
//
//	<enter>      start/stop recording
//	t <text>     send a typed chat message
//	role <name>  switch the assistant persona
//	form         print the filled form fields
//	stop         stop playback
//	quit         exit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voiceform/go-voiceform/internal/config"
	"github.com/voiceform/go-voiceform/internal/log"
	"github.com/voiceform/go-voiceform/pkg/form"
	"github.com/voiceform/go-voiceform/pkg/protocol"
	"github.com/voiceform/go-voiceform/pkg/voiceclient"
)

var (
	serverURL = flag.String("server", "", "Voice server base URL (or set VOICEFORM_SERVER)")
	role      = flag.String("role", "", "Assistant persona: co-worker, butler, coach")
	mode      = flag.String("mode", "batch", "Audio delivery: batch or streaming")
	backend   = flag.String("backend", "portaudio", "Capture backend: portaudio or mock")
	playback  = flag.String("playback", "portaudio", "Playback backend: portaudio or mock")
	timeout   = flag.Duration("timeout", 10*time.Second, "Connection timeout")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()
	log.InitFromEnv()

	server := *serverURL
	if server == "" {
		server = config.ServerURL("ws://" + config.DefaultServerHost)
	}
	persona := *role
	if persona == "" {
		persona = config.AIRole()
	}

	client, err := voiceclient.New(
		voiceclient.WithServerURL(server),
		voiceclient.WithAIRole(persona),
		voiceclient.WithMode(voiceclient.Mode(*mode)),
		voiceclient.WithCaptureBackend(*backend),
		voiceclient.WithPlaybackBackend(*playback),
		voiceclient.WithTimeout(*timeout),
		voiceclient.WithLogger(log.L()),
	)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	client.OnConnectionState(func(s voiceclient.ConnectionState) {
		switch s {
		case voiceclient.StateConnected:
			fmt.Println("🔌 connected")
		case voiceclient.StateDisconnected:
			fmt.Println("🔌 disconnected")
		}
	})
	client.OnTranscript(func(text string) {
		fmt.Printf("📝 you said: %s\n", text)
	})
	client.OnFunctionCall(func(call protocol.FunctionCall, changed []string) {
		if call.Reply != "" {
			fmt.Printf("🤖 %s\n", call.Reply)
		}
		for _, id := range changed {
			value, _ := client.Form().Get(id)
			fmt.Printf("   ✏️  %s = %v\n", fieldLabel(id), value)
		}
	})
	client.OnPlaybackState(func(playing bool) {
		if playing {
			fmt.Println("🔊 playing reply")
		}
	})
	client.OnError(func(err error) {
		fmt.Printf("⚠️  %v\n", err)
	})

	fmt.Printf("🎙️  voiceform client %s\n", client.ClientID())
	fmt.Printf("    server: %s\n", client.Endpoint())
	fmt.Printf("    role: %s, mode: %s\n", persona, *mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		fmt.Printf("❌ connect failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n👋 shutting down")
		client.Disconnect()
		os.Exit(0)
	}()

	fmt.Println("press enter to start/stop recording, 'quit' to exit")
	runLoop(ctx, client)
}

func runLoop(ctx context.Context, client *voiceclient.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			toggleRecording(ctx, client)

		case line == "quit" || line == "exit":
			return

		case line == "stop":
			client.StopPlayback()
			fmt.Println("⏹️  playback stopped")

		case line == "form":
			printForm(client)

		case strings.HasPrefix(line, "role "):
			newRole := strings.TrimSpace(strings.TrimPrefix(line, "role "))
			if err := client.SendRoleChange(newRole); err != nil {
				fmt.Printf("⚠️  %v\n", err)
				continue
			}
			fmt.Printf("🎭 role changed to %s\n", newRole)

		case strings.HasPrefix(line, "t "):
			text := strings.TrimSpace(strings.TrimPrefix(line, "t "))
			if err := client.SendText(text); err != nil {
				fmt.Printf("⚠️  %v\n", err)
			}

		default:
			fmt.Println("commands: <enter>, t <text>, role <name>, form, stop, quit")
		}
	}
}

func toggleRecording(ctx context.Context, client *voiceclient.Client) {
	if client.IsRecording() {
		err := client.StopRecording()
		switch {
		case err == nil:
			fmt.Println("📤 recording sent")
		case voiceclient.IsQualityGate(err):
			fmt.Printf("🔇 recording discarded: %v\n", err)
		default:
			fmt.Printf("⚠️  %v\n", err)
		}
		return
	}

	if err := client.StartRecording(ctx); err != nil {
		fmt.Printf("⚠️  %v\n", err)
		return
	}
	fmt.Println("🔴 recording... press enter to stop")
}

func printForm(client *voiceclient.Client) {
	filled := client.Form().FilledFields()
	if len(filled) == 0 {
		fmt.Println("📋 form is empty")
		return
	}
	fmt.Println("📋 filled fields:")
	for _, id := range filled {
		value, _ := client.Form().Get(id)
		fmt.Printf("   %s: %v\n", fieldLabel(id), value)
	}
}

func fieldLabel(id string) string {
	if f, ok := form.FieldByID(id); ok {
		return f.Label
	}
	return id
}
