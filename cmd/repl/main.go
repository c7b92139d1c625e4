// Command repl is a terminal client for a tandem server. It attaches to
// one agent, mirrors that agent's event stream onto the terminal, and
// sends every typed line as a turn; slash commands cover the rest of the
// RPC surface. Run several instances against the same agent to watch
// them stay in sync.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"tandem/internal/domain/models"
	"tandem/internal/event"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// codeConflict mirrors the server's JSON-RPC conflict code, used to
// tell "agent already exists" apart from real create failures.
const codeConflict = -32003

type REPL struct {
	ctx     context.Context
	client  *http.Client
	baseURL string
	token   string
	agentID string
	scanner *bufio.Scanner
	logger  *slog.Logger

	mu          sync.Mutex
	lastSeq     uint64
	lastRequest string

	// midLine is true while content chunks are being appended to the
	// current terminal line. Touched only by the stream goroutine.
	midLine bool
}

// setupLogger creates a debug logger writing to a timestamped file. The
// terminal belongs to the event stream, so nothing logs to stdout.
func setupLogger() (*slog.Logger, string, error) {
	logsDir := "logs"
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFilename := filepath.Join(logsDir, fmt.Sprintf("repl_%s.log", timestamp))

	logFile, err := os.Create(logFilename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create log file: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	return logger, logFilename, nil
}

func main() {
	server := flag.String("server", "http://127.0.0.1:8377", "server base URL")
	token := flag.String("token", "", "bearer token (default $TANDEM_AUTH_TOKEN)")
	engine := flag.String("engine", "", "engine profile when creating the agent (server default if empty)")
	flag.Parse()

	// Load .env file so a token printed by a local server is picked up
	_ = godotenv.Load()

	agentID := flag.Arg(0)
	if agentID == "" {
		agentID = "repl"
	}
	authToken := *token
	if authToken == "" {
		authToken = os.Getenv("TANDEM_AUTH_TOKEN")
	}

	logger, logFile, err := setupLogger()
	if err != nil {
		fmt.Printf("Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("session started", "log_file", logFile, "server", *server, "agent_id", agentID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repl := &REPL{
		ctx:     ctx,
		client:  &http.Client{},
		baseURL: strings.TrimRight(*server, "/"),
		token:   authToken,
		agentID: agentID,
		scanner: bufio.NewScanner(os.Stdin),
		logger:  logger,
	}

	// Create the agent, or attach if another client already did.
	created, err := repl.attach(*engine)
	if err != nil {
		logger.Error("attach failed", "error", err)
		fmt.Printf("%s❌ Failed to attach to agent %q: %v%s\n", colorRed, agentID, err, colorReset)
		os.Exit(1)
	}

	fmt.Printf("\n%s╔══════════════════════════════════════╗%s\n", colorCyan, colorReset)
	fmt.Printf("%s║              tandem repl             ║%s\n", colorCyan, colorReset)
	fmt.Printf("%s╚══════════════════════════════════════╝%s\n", colorCyan, colorReset)
	verb := "attached to"
	if created {
		verb = "created"
	}
	fmt.Printf("%s%s agent %q on %s | /help for commands | log: %s%s\n",
		colorBlue, verb, agentID, repl.baseURL, logFile, colorReset)

	go repl.streamLoop(ctx)

	repl.run()
}

// attach creates the agent, treating an existing one as success. The
// bool reports whether this client created it.
func (r *REPL) attach(engine string) (bool, error) {
	params := map[string]any{"agent_id": r.agentID}
	if engine != "" {
		params["engine"] = engine
	}
	var res struct {
		AgentID string `json:"agent_id"`
	}
	err := r.callGlobal("create_agent", params, &res)
	if err == nil {
		return true, nil
	}
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) && rpcErr.Code == codeConflict {
		r.logger.Debug("agent already exists, attaching", "agent_id", r.agentID)
		return false, nil
	}
	return false, err
}

func (r *REPL) run() {
	for {
		line, ok := r.readLine()
		if !ok {
			fmt.Printf("\n%s✓ Goodbye!%s\n", colorGreen, colorReset)
			return
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				fmt.Printf("%s✓ Goodbye! (the agent keeps running)%s\n", colorGreen, colorReset)
				return
			}
			continue
		}

		// Sends run in the background so the prompt stays usable: a
		// confirmation request or a second client's turn can arrive
		// while this one is still streaming.
		go r.send(line)
	}
}

func (r *REPL) command(line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	r.logger.Debug("command", "cmd", cmd, "args", args)

	switch cmd {
	case "/help":
		r.printHelp()
	case "/quit", "/exit":
		return true
	case "/cancel":
		r.cancelTurn(args)
	case "/confirm":
		r.confirm(args)
	case "/messages":
		r.showMessages(args)
	case "/agents":
		r.listAgents()
	case "/sessions":
		r.listSessions()
	case "/save":
		r.sessionOp1("save_session", args, "saved")
	case "/load":
		r.sessionOp1("load_session", args, "loaded")
	case "/clone":
		r.sessionOp2("clone_session", args, "cloned")
	case "/rename":
		r.sessionOp2("rename_session", args, "renamed")
	case "/delete":
		r.deleteSession(args)
	case "/shutdown":
		r.shutdownServer()
	default:
		fmt.Printf("%s⚠ Unknown command %s (try /help)%s\n", colorYellow, cmd, colorReset)
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Printf("%sCommands:%s\n", colorCyan, colorReset)
	fmt.Println("  <text>                      send the line as a turn")
	fmt.Println("  /cancel [request-id]        cancel the in-flight turn")
	fmt.Println("  /confirm <id> <decision>    answer an approval prompt")
	fmt.Println("  /messages [offset] [limit]  page through the transcript")
	fmt.Println("  /agents                     list agents on the server")
	fmt.Println("  /sessions                   list saved sessions")
	fmt.Println("  /save <name>                snapshot this agent's transcript")
	fmt.Println("  /load <name>                restore a snapshot into this agent")
	fmt.Println("  /clone <name> <new>         copy a snapshot")
	fmt.Println("  /rename <name> <new>        rename a snapshot")
	fmt.Println("  /delete <name>              delete a snapshot")
	fmt.Println("  /shutdown                   stop the server")
	fmt.Println("  /quit                       leave (the agent keeps running)")
}

// send submits one turn and blocks until its terminal. Progress prints
// from the stream goroutine; only failures are reported here.
func (r *REPL) send(content string) {
	var res struct {
		RequestID string `json:"request_id"`
		Halted    bool   `json:"halted"`
	}
	err := r.callAgent("send", map[string]any{"content": content}, &res)
	if err != nil {
		r.logger.Warn("send failed", "error", err)
		fmt.Printf("%s❌ send: %v%s\n", colorRed, err, colorReset)
		return
	}
	r.logger.Debug("turn finished", "request_id", res.RequestID, "halted", res.Halted)
}

func (r *REPL) cancelTurn(args []string) {
	requestID := ""
	if len(args) > 0 {
		requestID = args[0]
	} else {
		r.mu.Lock()
		requestID = r.lastRequest
		r.mu.Unlock()
	}
	if requestID == "" {
		fmt.Printf("%s⚠ No turn observed yet; /cancel <request-id>%s\n", colorYellow, colorReset)
		return
	}

	var res struct {
		Cancelled bool   `json:"cancelled"`
		Reason    string `json:"reason"`
	}
	if err := r.callAgent("cancel", map[string]any{"request_id": requestID}, &res); err != nil {
		fmt.Printf("%s❌ cancel: %v%s\n", colorRed, err, colorReset)
		return
	}
	if res.Cancelled {
		fmt.Printf("%s✓ Cancel delivered for %s%s\n", colorGreen, requestID, colorReset)
	} else {
		fmt.Printf("%s⚠ Nothing to cancel (%s)%s\n", colorYellow, res.Reason, colorReset)
	}
}

func (r *REPL) confirm(args []string) {
	if len(args) != 2 {
		fmt.Printf("%s⚠ Usage: /confirm <confirm-id> <decision>%s\n", colorYellow, colorReset)
		return
	}
	var res struct {
		Accepted bool `json:"accepted"`
	}
	params := map[string]any{"confirm_id": args[0], "decision": args[1]}
	if err := r.callAgent("confirm", params, &res); err != nil {
		fmt.Printf("%s❌ confirm: %v%s\n", colorRed, err, colorReset)
		return
	}
	if res.Accepted {
		fmt.Printf("%s✓ Decision accepted%s\n", colorGreen, colorReset)
	} else {
		fmt.Printf("%s⚠ Too late: another client decided first%s\n", colorYellow, colorReset)
	}
}

func (r *REPL) showMessages(args []string) {
	params := map[string]any{}
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			params["offset"] = n
		}
	}
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			params["limit"] = n
		}
	}

	var res struct {
		Total    int              `json:"total"`
		Offset   int              `json:"offset"`
		Messages []models.Message `json:"messages"`
	}
	if err := r.callAgent("get_messages", params, &res); err != nil {
		fmt.Printf("%s❌ get_messages: %v%s\n", colorRed, err, colorReset)
		return
	}

	fmt.Printf("\n%s--- Transcript (%d message(s), showing from %d) ---%s\n",
		colorCyan, res.Total, res.Offset, colorReset)
	for _, m := range res.Messages {
		roleColor := colorBlue
		switch m.Role {
		case models.RoleAssistant:
			roleColor = colorGreen
		case models.RoleTool:
			roleColor = colorCyan
		}
		fmt.Printf("%s[%d %s]%s\n", roleColor, m.Index, strings.ToUpper(m.Role), colorReset)
		if m.Content != "" {
			fmt.Println(m.Content)
		}
		if tool, ok := m.Meta["tool"]; ok {
			fmt.Printf("%s  tool: %v | success: %v%s\n", colorCyan, tool, m.Meta["success"], colorReset)
		}
	}
}

func (r *REPL) listAgents() {
	var res struct {
		Agents []struct {
			AgentID     string `json:"agent_id"`
			Engine      string `json:"engine"`
			Busy        bool   `json:"busy"`
			Subscribers int    `json:"subscribers"`
		} `json:"agents"`
	}
	if err := r.callGlobal("list_agents", nil, &res); err != nil {
		fmt.Printf("%s❌ list_agents: %v%s\n", colorRed, err, colorReset)
		return
	}
	if len(res.Agents) == 0 {
		fmt.Printf("%s⚠ No agents%s\n", colorYellow, colorReset)
		return
	}
	for _, a := range res.Agents {
		state := "idle"
		if a.Busy {
			state = "busy"
		}
		fmt.Printf("  %s (engine: %s, %s, %d subscriber(s))\n", a.AgentID, a.Engine, state, a.Subscribers)
	}
}

func (r *REPL) listSessions() {
	var res struct {
		Sessions []models.SessionInfo `json:"sessions"`
	}
	if err := r.callGlobal("list_sessions", nil, &res); err != nil {
		fmt.Printf("%s❌ list_sessions: %v%s\n", colorRed, err, colorReset)
		return
	}
	if len(res.Sessions) == 0 {
		fmt.Printf("%s⚠ No saved sessions%s\n", colorYellow, colorReset)
		return
	}
	for _, s := range res.Sessions {
		fmt.Printf("  %s (agent: %s, %d message(s), updated %s)\n",
			s.Name, s.AgentID, s.MessageCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
}

// sessionOp1 runs save_session or load_session against this agent.
func (r *REPL) sessionOp1(method string, args []string, verb string) {
	if len(args) != 1 {
		fmt.Printf("%s⚠ Usage: /%s <name>%s\n", colorYellow, strings.TrimSuffix(method, "_session"), colorReset)
		return
	}
	params := map[string]any{"agent_id": r.agentID, "name": args[0]}
	var res json.RawMessage
	if err := r.callGlobal(method, params, &res); err != nil {
		fmt.Printf("%s❌ %s: %v%s\n", colorRed, method, err, colorReset)
		return
	}
	fmt.Printf("%s✓ Session %q %s%s\n", colorGreen, args[0], verb, colorReset)
}

// sessionOp2 runs clone_session or rename_session.
func (r *REPL) sessionOp2(method string, args []string, verb string) {
	if len(args) != 2 {
		fmt.Printf("%s⚠ Usage: /%s <name> <new-name>%s\n", colorYellow, strings.TrimSuffix(method, "_session"), colorReset)
		return
	}
	params := map[string]any{"name": args[0], "new_name": args[1]}
	var res json.RawMessage
	if err := r.callGlobal(method, params, &res); err != nil {
		fmt.Printf("%s❌ %s: %v%s\n", colorRed, method, err, colorReset)
		return
	}
	fmt.Printf("%s✓ Session %q %s to %q%s\n", colorGreen, args[0], verb, args[1], colorReset)
}

func (r *REPL) deleteSession(args []string) {
	if len(args) != 1 {
		fmt.Printf("%s⚠ Usage: /delete <name>%s\n", colorYellow, colorReset)
		return
	}
	var res json.RawMessage
	if err := r.callGlobal("delete_session", map[string]any{"name": args[0]}, &res); err != nil {
		fmt.Printf("%s❌ delete_session: %v%s\n", colorRed, err, colorReset)
		return
	}
	fmt.Printf("%s✓ Session %q deleted%s\n", colorGreen, args[0], colorReset)
}

func (r *REPL) shutdownServer() {
	var res json.RawMessage
	if err := r.callGlobal("shutdown_server", nil, &res); err != nil {
		fmt.Printf("%s❌ shutdown_server: %v%s\n", colorRed, err, colorReset)
		return
	}
	fmt.Printf("%s✓ Shutdown requested%s\n", colorGreen, colorReset)
}

// JSON-RPC plumbing

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (r *REPL) callGlobal(method string, params, out any) error {
	return r.call("/rpc", method, params, out)
}

func (r *REPL) callAgent(method string, params, out any) error {
	return r.call("/agent/"+r.agentID+"/rpc", method, params, out)
}

func (r *REPL) call(path, method string, params, out any) error {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(r.ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	r.logger.Debug("rpc call", "method", method, "path", path)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Event stream

// streamLoop keeps one SSE connection up, reconnecting with the last
// seen seq so nothing retained is missed. Transport failures surface as
// local stream_error notices; the server never sends that type.
func (r *REPL) streamLoop(ctx context.Context) {
	reported := false
	for ctx.Err() == nil {
		err := r.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			var fatal *fatalStreamError
			if errors.As(err, &fatal) {
				fmt.Printf("\n%s❌ stream closed: %v (the agent may have been destroyed)%s\n",
					colorRed, err, colorReset)
				return
			}
			if !reported {
				r.printStreamError(err)
				reported = true
			}
			r.logger.Debug("stream reconnect pending", "error", err)
		} else {
			// Clean end of stream: the server is draining.
			if !reported {
				r.printStreamError(errors.New("server closed the stream"))
				reported = true
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// fatalStreamError marks HTTP-level rejections that reconnecting cannot
// fix (missing agent, bad token).
type fatalStreamError struct {
	status int
	body   string
}

func (e *fatalStreamError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

func (r *REPL) streamOnce(ctx context.Context) error {
	url := r.baseURL + "/agent/" + r.agentID + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	r.mu.Lock()
	cursor := r.lastSeq
	r.mu.Unlock()
	if cursor > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(cursor, 10))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &fatalStreamError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	r.logger.Info("stream connected", "cursor", cursor)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				r.handleFrame(data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// id: and event: lines carry nothing the flat JSON body
			// does not repeat.
		}
	}
	return scanner.Err()
}

// handleFrame decodes one SSE data payload and prints it. Frames at or
// below the cursor are duplicates from the replay/live boundary.
func (r *REPL) handleFrame(data string) {
	var ev event.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		r.logger.Warn("undecodable frame", "error", err, "data", data)
		return
	}
	if ev.Type == event.TypePing {
		return
	}

	r.mu.Lock()
	if ev.Seq > 0 && ev.Seq <= r.lastSeq {
		r.mu.Unlock()
		return
	}
	if ev.Seq > 0 {
		r.lastSeq = ev.Seq
	}
	if ev.Type == event.TypeTurnStarted && ev.RequestID != "" {
		r.lastRequest = ev.RequestID
	}
	r.mu.Unlock()

	r.printEvent(ev)
}

func (r *REPL) printEvent(ev event.Event) {
	// Close out a partially printed content line before block output.
	if r.midLine && ev.Type != event.TypeContentChunk {
		fmt.Println()
		r.midLine = false
	}

	switch ev.Type {
	case event.TypeContentChunk:
		if p, ok := ev.Payload.(event.ContentChunk); ok {
			fmt.Print(p.Text)
			r.midLine = true
		}
	case event.TypeTurnStarted:
		fmt.Printf("%s• turn started (%s)%s\n", colorBlue, ev.RequestID, colorReset)
	case event.TypeTurnCompleted:
		suffix := ""
		if p, ok := ev.Payload.(event.TurnCompleted); ok && p.Halted {
			suffix = " (halted)"
		}
		fmt.Printf("%s✓ turn completed%s%s\n", colorGreen, suffix, colorReset)
	case event.TypeTurnCancelled:
		fmt.Printf("%s⚠ turn cancelled (%s)%s\n", colorYellow, ev.RequestID, colorReset)
	case event.TypeThinkingStarted:
		fmt.Printf("%s[thinking...]%s\n", colorYellow, colorReset)
	case event.TypeThinkingEnded:
		if p, ok := ev.Payload.(event.ThinkingEnded); ok {
			fmt.Printf("%s[thought for %.1fs]%s\n", colorYellow, float64(p.DurationMS)/1000, colorReset)
		}
	case event.TypeToolDetected:
		if p, ok := ev.Payload.(event.ToolDetected); ok {
			fmt.Printf("%s⚙ tool detected: %s%s\n", colorCyan, p.Name, colorReset)
		}
	case event.TypeBatchStarted:
		if p, ok := ev.Payload.(event.BatchStarted); ok {
			fmt.Printf("%s⚙ running %d tool(s):%s\n", colorCyan, len(p.Tools), colorReset)
			for _, t := range p.Tools {
				fmt.Printf("%s    %s %s%s\n", colorCyan, t.Name, t.Params, colorReset)
			}
		}
	case event.TypeToolStarted:
		if p, ok := ev.Payload.(event.ToolStarted); ok {
			fmt.Printf("%s  ▸ %s...%s\n", colorCyan, p.Name, colorReset)
		}
	case event.TypeToolCompleted:
		if p, ok := ev.Payload.(event.ToolCompleted); ok {
			if p.Success {
				fmt.Printf("%s  ✓ done%s\n", colorCyan, colorReset)
			} else {
				fmt.Printf("%s  ❌ failed: %s%s\n", colorRed, p.Error, colorReset)
			}
		}
	case event.TypeBatchHalted:
		fmt.Printf("%s⚠ tool batch halted%s\n", colorYellow, colorReset)
	case event.TypeBatchCompleted:
		fmt.Printf("%s⚙ tool batch completed%s\n", colorCyan, colorReset)
	case event.TypeConfirmationRequested:
		if p, ok := ev.Payload.(event.ConfirmationRequested); ok {
			fmt.Printf("%s⚠ approval needed for %s%s\n", colorYellow, p.Tool, colorReset)
			fmt.Printf("%s  /confirm %s <%s>%s\n",
				colorYellow, p.ConfirmID, strings.Join(p.Options, "|"), colorReset)
			if p.TimeoutS > 0 {
				fmt.Printf("%s  (denies automatically in %ds)%s\n", colorYellow, p.TimeoutS, colorReset)
			}
		}
	case event.TypeConfirmationResolved:
		if p, ok := ev.Payload.(event.ConfirmationResolved); ok {
			fmt.Printf("%s✓ confirmation resolved: %s%s\n", colorGreen, p.Decision, colorReset)
		}
	default:
		r.logger.Debug("unhandled event type", "type", ev.Type)
	}
}

// printStreamError matches what the protocol asks of clients: transport
// failures become a synthesized stream_error, never a server event.
func (r *REPL) printStreamError(cause error) {
	ev := event.NewStreamError(r.agentID, cause.Error())
	if p, ok := ev.Payload.(event.StreamError); ok {
		fmt.Printf("\n%s⚠ stream_error: %s (reconnecting...)%s\n", colorYellow, p.Error, colorReset)
	}
}

func (r *REPL) readLine() (string, bool) {
	if !r.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.scanner.Text()), true
}
