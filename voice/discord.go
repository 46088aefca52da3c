package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
)

// Listener joins a Discord voice channel and hands each speaker's audio
// to a Manager.
type Listener struct {
	discord   *discordgo.Session
	manager   *Manager
	guildID   string
	channelID string
	log       *log.Logger

	mu         sync.Mutex
	ctx        context.Context
	ssrcToUser map[uint32]string
	voice      *discordgo.VoiceConnection
}

func NewListener(
	token string,
	guildID string,
	channelID string,
	manager *Manager,
	logger *log.Logger,
) (*Listener, error) {
	discord, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	discord.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	l := newListener(manager, guildID, channelID, logger)
	l.discord = discord
	discord.AddHandler(l.handleGuildCreate)
	return l, nil
}

func newListener(manager *Manager, guildID, channelID string, logger *log.Logger) *Listener {
	return &Listener{
		manager:    manager,
		guildID:    guildID,
		channelID:  channelID,
		log:        logger,
		ctx:        context.Background(),
		ssrcToUser: make(map[uint32]string),
	}
}

// Run connects to Discord and listens until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()

	if err := l.discord.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}
	l.log.Info("bot connected")

	if l.guildID != "" && l.channelID != "" {
		if err := l.join(l.guildID, l.channelID); err != nil {
			l.discord.Close()
			return err
		}
	}

	<-ctx.Done()

	l.manager.CloseAll()
	l.mu.Lock()
	vc := l.voice
	l.voice = nil
	l.mu.Unlock()
	if vc != nil {
		if err := vc.Disconnect(); err != nil {
			l.log.Warn("failed to leave voice channel", "error", err)
		}
	}
	return l.discord.Close()
}

// Listening reports whether the bot is in a voice channel.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.voice != nil
}

func (l *Listener) Sessions() []SessionInfo {
	return l.manager.Sessions()
}

func (l *Listener) handleGuildCreate(_ *discordgo.Session, event *discordgo.GuildCreate) {
	l.log.Info("joined", "guild", event.Guild.Name, "id", event.Guild.ID)
	if l.guildID != "" && l.guildID != event.Guild.ID {
		return
	}
	if l.Listening() {
		return
	}

	channelID := l.channelID
	if channelID == "" {
		channelID = busiestVoiceChannel(event.Guild)
	}
	if channelID == "" {
		l.log.Warn("no occupied voice channel to join", "guild", event.Guild.ID)
		return
	}
	if err := l.join(event.Guild.ID, channelID); err != nil {
		l.log.Error("failed to join voice channel", "channel", channelID, "error", err)
	}
}

func busiestVoiceChannel(guild *discordgo.Guild) string {
	counts := make(map[string]int)
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != "" {
			counts[vs.ChannelID]++
		}
	}
	best, bestCount := "", 0
	for _, ch := range guild.Channels {
		if ch.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}
		if counts[ch.ID] > bestCount {
			best, bestCount = ch.ID, counts[ch.ID]
		}
	}
	return best
}

func (l *Listener) join(guildID, channelID string) error {
	vc, err := l.discord.ChannelVoiceJoin(guildID, channelID, true, false)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	l.log.Info("listening", "guild", guildID, "channel", channelID)

	l.mu.Lock()
	l.voice = vc
	l.mu.Unlock()

	vc.AddHandler(l.handleVoiceSpeakingUpdate)
	go l.acceptInboundAudioPackets(vc)
	return nil
}

func (l *Listener) acceptInboundAudioPackets(vc *discordgo.VoiceConnection) {
	for packet := range vc.OpusRecv {
		l.handlePacket(packet.SSRC, packet.Opus)
	}
}

func (l *Listener) handleVoiceSpeakingUpdate(
	_ *discordgo.VoiceConnection,
	v *discordgo.VoiceSpeakingUpdate,
) {
	l.log.Debug("state", "speaking", v.Speaking, "userID", v.UserID, "ssrc", v.SSRC)

	l.mu.Lock()
	l.ssrcToUser[uint32(v.SSRC)] = v.UserID
	ctx := l.ctx
	l.mu.Unlock()

	if v.Speaking {
		l.manager.SpeakingStart(ctx, v.UserID)
	}
}

func (l *Listener) speaker(ssrc uint32) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if user, ok := l.ssrcToUser[ssrc]; ok {
		return user
	}
	return fmt.Sprintf("ssrc:%d", ssrc)
}

// handlePacket treats the first frame of a speaker without a live
// session as the start of speech.
func (l *Listener) handlePacket(ssrc uint32, opus []byte) {
	speaker := l.speaker(ssrc)
	if l.manager.Feed(speaker, opus) {
		return
	}

	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()

	if _, opened := l.manager.SpeakingStart(ctx, speaker); opened {
		l.manager.Feed(speaker, opus)
	}
}
