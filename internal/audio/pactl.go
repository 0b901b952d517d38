package audio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"
)

// volumeNorm is PA_VOLUME_NORM, the raw volume value PulseAudio
// reports for 100%.
const volumeNorm = 65536.0

// DefaultCommand is the command used to reach the PulseAudio server
// when no override is configured.
const DefaultCommand = "pactl"

// PactlClient implements Client by shelling out to pactl.
type PactlClient struct {
	argv   []string
	logger *slog.Logger

	mu     sync.Mutex
	subCmd *exec.Cmd
}

// NewPactlClient creates a PactlClient. The command string is split
// shell-style, so wrappers like "flatpak-spawn --host pactl" work.
func NewPactlClient(command string, logger *slog.Logger) (*PactlClient, error) {
	if command == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = slog.Default()
	}

	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid pactl command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty pactl command")
	}

	return &PactlClient{argv: argv, logger: logger}, nil
}

// run executes pactl with the given arguments and returns its stdout.
func (c *PactlClient) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append(append([]string{}, c.argv[1:]...), args...)
	cmd := exec.CommandContext(ctx, c.argv[0], full...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.argv[0], strings.Join(args, " "), err)
	}
	return output, nil
}

// Sinks lists all current sinks.
func (c *PactlClient) Sinks(ctx context.Context) ([]Sink, error) {
	output, err := c.run(ctx, "--format=json", "list", "sinks")
	if err != nil {
		return nil, err
	}

	entries, err := parseSinks(output)
	if err != nil {
		return nil, err
	}

	sinks := make([]Sink, len(entries))
	for i, e := range entries {
		sinks[i] = e.Sink
	}
	return sinks, nil
}

// SinkByIndex fetches a sink by server index.
func (c *PactlClient) SinkByIndex(ctx context.Context, index uint32) (Sink, error) {
	output, err := c.run(ctx, "--format=json", "list", "sinks")
	if err != nil {
		return Sink{}, err
	}

	entries, err := parseSinks(output)
	if err != nil {
		return Sink{}, err
	}

	for _, e := range entries {
		if e.Index == index {
			return e.Sink, nil
		}
	}
	return Sink{}, ErrNotFound
}

// CardByIndex fetches a card by server index.
func (c *PactlClient) CardByIndex(ctx context.Context, index uint32) (Card, error) {
	output, err := c.run(ctx, "--format=json", "list", "cards")
	if err != nil {
		return Card{}, err
	}

	entries, err := parseCards(output)
	if err != nil {
		return Card{}, err
	}

	for _, e := range entries {
		if e.Index == index {
			return e.Card, nil
		}
	}
	return Card{}, ErrNotFound
}

// Subscribe starts a long-lived "pactl subscribe" subprocess and
// translates its output into Events. The channel is unbuffered so a
// slow consumer backpressures the stream, and it is closed when the
// subprocess exits.
func (c *PactlClient) Subscribe(ctx context.Context) (<-chan Event, error) {
	full := append(append([]string{}, c.argv[1:]...), "subscribe")
	cmd := exec.CommandContext(ctx, c.argv[0], full...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pactl subscribe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pactl subscribe: %w", err)
	}

	c.mu.Lock()
	c.subCmd = cmd
	c.mu.Unlock()

	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer func() { _ = cmd.Wait() }()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			event, ok := parseEvent(scanner.Text())
			if !ok {
				c.logger.Debug("unparsable subscribe line", "line", scanner.Text())
				continue
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Close terminates the subscription subprocess if one is running.
func (c *PactlClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subCmd != nil && c.subCmd.Process != nil {
		_ = c.subCmd.Process.Kill()
		c.subCmd = nil
	}
	return nil
}

// pactlVolume is one channel's volume in pactl JSON output.
type pactlVolume struct {
	Value uint32 `json:"value"`
}

// pactlSink is a single entry of "pactl --format=json list sinks".
type pactlSink struct {
	Index      uint32                 `json:"index"`
	Name       string                 `json:"name"`
	Mute       bool                   `json:"mute"`
	ChannelMap string                 `json:"channel_map"`
	Volume     map[string]pactlVolume `json:"volume"`
}

// pactlCard is a single entry of "pactl --format=json list cards".
type pactlCard struct {
	Index      uint32            `json:"index"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties"`
}

// indexedSink pairs a Sink with its server index.
type indexedSink struct {
	Index uint32
	Sink  Sink
}

// indexedCard pairs a Card with its server index.
type indexedCard struct {
	Index uint32
	Card  Card
}

// parseSinks decodes pactl sink-list JSON output.
func parseSinks(data []byte) ([]indexedSink, error) {
	var raw []pactlSink
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse sink list: %w", err)
	}

	sinks := make([]indexedSink, 0, len(raw))
	for _, s := range raw {
		sinks = append(sinks, indexedSink{
			Index: s.Index,
			Sink: Sink{
				Name:           s.Name,
				Muted:          s.Mute,
				ChannelVolumes: channelLevels(s.ChannelMap, s.Volume),
			},
		})
	}
	return sinks, nil
}

// channelLevels flattens the per-channel volume object into normalized
// levels. The JSON object is unordered, so the sink's channel map
// provides the device's channel order; channels missing from the map
// are appended in name order to keep the result deterministic.
func channelLevels(channelMap string, volume map[string]pactlVolume) []float64 {
	seen := make(map[string]bool, len(volume))
	levels := make([]float64, 0, len(volume))

	for _, name := range strings.Split(channelMap, ",") {
		name = strings.TrimSpace(name)
		v, ok := volume[name]
		if !ok {
			continue
		}
		seen[name] = true
		levels = append(levels, float64(v.Value)/volumeNorm)
	}

	rest := make([]string, 0, len(volume))
	for name := range volume {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		levels = append(levels, float64(volume[name].Value)/volumeNorm)
	}

	return levels
}

// parseCards decodes pactl card-list JSON output.
func parseCards(data []byte) ([]indexedCard, error) {
	var raw []pactlCard
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse card list: %w", err)
	}

	cards := make([]indexedCard, 0, len(raw))
	for _, c := range raw {
		cards = append(cards, indexedCard{
			Index: c.Index,
			Card: Card{
				Name:        c.Name,
				Description: c.Properties["device.description"],
			},
		})
	}
	return cards, nil
}

// eventLine matches "pactl subscribe" output, e.g.
// "Event 'change' on sink #12".
var eventLine = regexp.MustCompile(`^Event '([a-z]+)' on ([a-z-]+) #(\d+)$`)

// parseEvent parses one line of "pactl subscribe" output.
func parseEvent(line string) (Event, bool) {
	m := eventLine.FindStringSubmatch(line)
	if m == nil {
		return Event{}, false
	}

	var eventType EventType
	switch m[1] {
	case "new":
		eventType = EventNew
	case "change":
		eventType = EventChange
	case "remove":
		eventType = EventRemove
	default:
		return Event{}, false
	}

	facility := FacilityOther
	switch m[2] {
	case "sink":
		facility = FacilitySink
	case "card":
		facility = FacilityCard
	}

	index, err := strconv.ParseUint(m[3], 10, 32)
	if err != nil {
		return Event{}, false
	}

	return Event{Facility: facility, Type: eventType, Index: uint32(index)}, true
}
