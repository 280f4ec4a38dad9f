// Package main provides the control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/trakify/internal/api/connect"
)

var (
	app    = kingpin.New("trakify-ctl", "trakify control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "API token (or set TRAKIFY_API_TOKEN env)").Envar("TRAKIFY_API_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show player status").Default()

	// enqueue command
	enqueueCmd     = app.Command("enqueue", "Append an item to the queue").Alias("add")
	enqueueTitle   = enqueueCmd.Arg("title", "Item title (used as the resolver query)").String()
	enqueueArtist  = enqueueCmd.Flag("artist", "Artist name").String()
	enqueueContent = enqueueCmd.Flag("content", "Already resolved content path").String()
	enqueueTrack   = enqueueCmd.Flag("track", "Spotify track ID or URL instead of a title").String()

	// album command
	albumCmd      = app.Command("album", "Replace the queue with a catalog album")
	albumID       = albumCmd.Arg("album", "Spotify album ID or URL").String()
	albumPlaylist = albumCmd.Flag("playlist", "Spotify playlist URL instead of an album").String()
	albumPlay     = albumCmd.Flag("play", "Start playing the first track").Bool()
	albumPrefetch = albumCmd.Flag("prefetch", "Resolve every track in the background").Bool()

	// search command
	searchCmd   = app.Command("search", "Search the catalog")
	searchQuery = searchCmd.Arg("query", "Search query").Required().Strings()
	searchLimit = searchCmd.Flag("limit", "Maximum results").Default("10").Int()

	// play command
	playCmd   = app.Command("play", "Play the item at a queue index")
	playIndex = playCmd.Arg("index", "Queue index").Required().Int()

	nextCmd     = app.Command("next", "Play the next item")
	previousCmd = app.Command("previous", "Restart the track or play the previous one").Alias("prev")
	pauseCmd    = app.Command("pause", "Pause playback")
	resumeCmd   = app.Command("resume", "Resume playback")
	stopCmd     = app.Command("stop", "Stop playback")
	clearCmd    = app.Command("clear", "Empty the queue")
	prefetchCmd = app.Command("prefetch", "Resolve every unresolved item in the background")

	// seek command
	seekCmd      = app.Command("seek", "Seek within the current track")
	seekPosition = seekCmd.Arg("position", "Position (e.g. 1m30s)").Required().Duration()

	// history command
	historyCmd   = app.Command("history", "Show recently played items")
	historyLimit = historyCmd.Flag("limit", "Maximum persisted plays").Default("20").Int()

	// watch command
	watchCmd = app.Command("watch", "Print status updates as they happen")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, client, command); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, client *apiconnect.Client, command string) error {
	switch command {
	case statusCmd.FullCommand():
		st, err := client.GetStatus(ctx)
		if err != nil {
			return err
		}
		printStatus(st)
	case enqueueCmd.FullCommand():
		var (
			resp *apiconnect.EnqueueResponse
			err  error
		)
		if *enqueueTrack != "" {
			resp, err = client.EnqueueTrack(ctx, *enqueueTrack)
		} else {
			resp, err = client.Enqueue(ctx, apiconnect.Item{
				Title:      *enqueueTitle,
				Artist:     *enqueueArtist,
				ContentRef: *enqueueContent,
			})
		}
		if err != nil {
			return err
		}
		fmt.Printf("Enqueued: %s (%s)\n", resp.Item.Title, resp.Item.ID)
	case albumCmd.FullCommand():
		resp, err := client.EnqueueAlbum(ctx, &apiconnect.EnqueueAlbumRequest{
			AlbumID:     *albumID,
			PlaylistURL: *albumPlaylist,
			Play:        *albumPlay,
			Prefetch:    *albumPrefetch,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Queued album %q: %d tracks\n", resp.Name, resp.Count)
	case searchCmd.FullCommand():
		resp, err := client.Search(ctx, strings.Join(*searchQuery, " "), *searchLimit)
		if err != nil {
			return err
		}
		for i, t := range resp.Tracks {
			fmt.Printf("%2d. %s - %s [%s] %s\n", i+1, strings.Join(t.Artists, ", "), t.Name,
				formatMs(int(t.DurationMs)), t.ID)
		}
	case playCmd.FullCommand():
		return printApplied(client.PlayAt(ctx, *playIndex))
	case nextCmd.FullCommand():
		return printApplied(client.Next(ctx))
	case previousCmd.FullCommand():
		return printApplied(client.Previous(ctx))
	case pauseCmd.FullCommand():
		return printApplied(client.Pause(ctx))
	case resumeCmd.FullCommand():
		return printApplied(client.Resume(ctx))
	case stopCmd.FullCommand():
		return printApplied(client.Stop(ctx))
	case seekCmd.FullCommand():
		return printApplied(client.Seek(ctx, int(seekPosition.Milliseconds())))
	case clearCmd.FullCommand():
		if _, err := client.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Queue cleared")
	case prefetchCmd.FullCommand():
		resp, err := client.Prefetch(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Submitted %d items for resolution\n", resp.Submitted)
	case historyCmd.FullCommand():
		resp, err := client.History(ctx, *historyLimit)
		if err != nil {
			return err
		}
		fmt.Println("Session:")
		for i, it := range resp.Session {
			fmt.Printf("  %2d. %s\n", i+1, formatItem(it))
		}
		if len(resp.Plays) > 0 {
			fmt.Println("Play log:")
			for _, p := range resp.Plays {
				fmt.Printf("  %s  %s\n", p.PlayedAt.Local().Format(time.DateTime), p.Title)
			}
		}
	case watchCmd.FullCommand():
		fmt.Println("Watching status. Press Ctrl+C to exit.")
		err := client.Subscribe(ctx, func(st *apiconnect.Status) error {
			fmt.Printf("\n[Sequence: %d]\n", st.SequenceNo)
			printStatus(st)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func printApplied(res *apiconnect.Applied, err error) error {
	if err != nil {
		return err
	}
	if res.Applied {
		fmt.Println("OK")
	} else {
		fmt.Println("No effect")
	}
	return nil
}

func printStatus(st *apiconnect.Status) {
	fmt.Printf("Phase: %s", formatPhase(st.Phase))
	if st.Title != "" {
		fmt.Printf("  %s [%s / %s]", st.Title, formatMs(st.PositionMs), formatMs(st.DurationMs))
	}
	fmt.Println()
	if st.LastError != "" {
		fmt.Printf("Error: %s\n", st.LastError)
	}
	fmt.Printf("Repeat: %s  History: %d\n", st.Repeat, st.HistoryLen)
	for i, it := range st.Queue {
		marker := "  "
		if i == st.CurrentIndex {
			marker = "> "
		}
		fmt.Printf("%s%2d. %s\n", marker, i, formatItem(it))
	}
}

func formatItem(it apiconnect.Item) string {
	s := it.Title
	if it.Artist != "" {
		s = it.Artist + " - " + s
	}
	switch {
	case it.Resolving:
		s += " (resolving)"
	case it.ContentRef == "":
		s += " (unresolved)"
	}
	return s
}

func formatPhase(phase string) string {
	switch phase {
	case "idle":
		return "⏹  Idle"
	case "resolving":
		return "🔎 Resolving"
	case "buffering":
		return "⏳ Buffering"
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "error":
		return "❌ Error"
	default:
		return "❓ " + phase
	}
}

func formatMs(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
