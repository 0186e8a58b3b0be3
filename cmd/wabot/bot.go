package main

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	coreconfig "github.com/m3rciful/wabot/core/config"
	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
	"github.com/m3rciful/wabot/core/whatsapp/format"
	"github.com/m3rciful/wabot/core/whatsapp/message"
	"github.com/m3rciful/wabot/core/whatsapp/middleware"
	"github.com/m3rciful/wabot/core/whatsapp/scenes"
	"github.com/m3rciful/wabot/core/whatsapp/session"
)

const sceneRegister = "register"

func newBot(cfg *coreconfig.Config, store session.Store) *whatsapp.Bot {
	bot := whatsapp.NewBot(nil)
	stage := scenes.NewStage(registrationWizard())

	bot.Use(
		session.Middleware(store, session.KeyBySender(cfg.Session.KeyBySender)),
		stage.Middleware(),
	)

	bot.Start(func(c *whatsapp.Context) error {
		name := c.SenderName()
		if name == "" {
			name = "there"
		}
		return c.Reply(fmt.Sprintf("Hi %s! Send /help to see what I can do.", name))
	})
	bot.Help(func(c *whatsapp.Context) error {
		items := make([]string, 0, len(bot.Commands()))
		for _, cmd := range bot.Commands() {
			items = append(items, cmd.Name+" - "+cmd.Description)
		}
		return c.Reply(format.Bold("Commands") + "\n" + format.List(items...))
	})
	bot.RegisterCommand("register", whatsapp.Command{
		Description: "Tell me about yourself",
		Aliases:     []string{"signup"},
		Handler: func(c *whatsapp.Context) error {
			return scenes.From(c).Enter(sceneRegister)
		},
	})
	bot.RegisterCommand("profile", whatsapp.Command{
		Description: "Show what you told me",
		Handler:     showProfile,
	})
	bot.RegisterCommand("stats", whatsapp.Command{
		Hidden: true,
		Handler: middleware.AdminOnly(middleware.AdminOptions{
			AdminID: cfg.WhatsApp.AdminID,
			OnReject: func(c *whatsapp.Context) error {
				return c.Reply("This command is for the bot admin.")
			},
		})(func(c *whatsapp.Context) error {
			count, _ := toInt(c.Session["messages"])
			return c.Reply(fmt.Sprintf("Messages in this chat: %d", count))
		}),
	})

	bot.Hears(regexp.MustCompile(`(?i)^ping$`), func(c *whatsapp.Context) error {
		return c.Reply("pong", whatsapp.QuoteCurrent())
	})
	bot.On(func(c *whatsapp.Context) error {
		lat, _ := c.Message().GetLatitude()
		lon, _ := c.Message().GetLongitude()
		return c.Reply(fmt.Sprintf("You are at %.5f, %.5f", lat, lon))
	}, message.TypeLocation)
	bot.On(func(c *whatsapp.Context) error {
		return c.Reply(fmt.Sprintf("Got your %s.", mediaName(c.Message().Type)))
	}, message.TypeImage, message.TypeVideo, message.TypeAudio, message.TypeDocument, message.TypeFile)
	bot.On(func(c *whatsapp.Context) error {
		count, _ := toInt(c.Session["messages"])
		c.Session["messages"] = count + 1
		return c.Reply(c.Text())
	}, message.TypeText, message.TypeExtendedText, message.TypeQuoted)

	bot.Catch(func(err error, c *whatsapp.Context) error {
		logger.Error(c.Context(), logger.CompApp, "handler.error",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		if c.ChatID() == "" {
			return nil
		}
		if replyErr := c.Reply("Something went wrong, please try again."); replyErr != nil {
			logger.Warn(c.Context(), logger.CompApp, "handler.error.reply",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(replyErr.Error(), 256)),
			)
		}
		return nil
	})
	return bot
}

func registrationWizard() *scenes.Wizard {
	w := scenes.NewWizard(sceneRegister,
		func(c *whatsapp.Context) error {
			scenes.WizardFrom(c).Next(nil)
			return c.Reply("What is your name? Send /cancel to stop or /back to go back.")
		},
		func(c *whatsapp.Context) error {
			name := strings.TrimSpace(c.Text())
			if name == "" {
				return c.Reply("Please send your name as text.")
			}
			scenes.WizardFrom(c).Next(map[string]any{"name": name})
			return c.Reply(fmt.Sprintf("Nice to meet you, %s. How old are you?", name))
		},
		func(c *whatsapp.Context) error {
			age, err := strconv.Atoi(strings.TrimSpace(c.Text()))
			if err != nil || age <= 0 || age > 150 {
				return c.Reply("Please send your age as a number.")
			}
			wz := scenes.WizardFrom(c)
			wz.Next(map[string]any{"age": age})

			name, _ := wz.StepData(1)["name"].(string)
			c.Session["profile"] = map[string]any{"name": name, "age": age}
			if err := wz.Complete(); err != nil {
				return err
			}
			return c.Reply(fmt.Sprintf("Saved: %s, %d. Send /profile to see it again.", name, age))
		},
	)
	w.Command("cancel", func(c *whatsapp.Context) error {
		if err := scenes.From(c).Leave(); err != nil {
			return err
		}
		return c.Reply("Registration cancelled.")
	})
	w.Command("back", func(c *whatsapp.Context) error {
		// Each step asks the question answered by the next one, so going
		// back from the age step means asking for the name again.
		if wz := scenes.WizardFrom(c); wz.Cursor() > 1 {
			wz.Previous()
		}
		return c.Reply("What is your name?")
	})
	return w
}

func showProfile(c *whatsapp.Context) error {
	profile, ok := c.Session["profile"].(map[string]any)
	if !ok {
		return c.Reply("I don't know you yet. Send /register.")
	}
	name, _ := profile["name"].(string)
	age, _ := toInt(profile["age"])
	return c.Reply(format.List(
		"Name: "+format.Escape(name),
		"Age: "+strconv.Itoa(age),
	))
}

func mediaName(t message.Type) string {
	return strings.TrimSuffix(string(t), "Message")
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
