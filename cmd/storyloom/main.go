// Package main is the entry point for storyloom.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"storyloom/internal/app"
	"storyloom/internal/export"
	"storyloom/internal/llm"
	"storyloom/internal/storage"
	"storyloom/internal/story"
	"storyloom/internal/token"
	"storyloom/pkg/types"
)

var version = "0.1.0"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "storyloom",
	Short: "A story development tool with AI-assisted continuation",
	Long: `Storyloom manages the working state of a story: its elements,
relationships, chapters and versions. It can seed a story from an idea
and continue chapters with AI assistance.`,
	Version: version,
}

// env bundles everything a command needs.
type env struct {
	configManager *app.ConfigManager
	config        *types.GlobalConfig
	session       *app.Session
	logger        *slog.Logger
}

// bootstrap loads configuration, opens the configured backend and builds a
// session over it.
func bootstrap(ctx context.Context) (*env, error) {
	configManager, err := app.NewConfigManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	config, err := configManager.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := app.NewLogger(config.Logging)

	store, err := storage.Open(ctx, config.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return &env{
		configManager: configManager,
		config:        config,
		session:       app.NewSession(store, logger),
		logger:        logger,
	}, nil
}

// loadCurrent loads the most recently updated story into the session.
func loadCurrent(ctx context.Context, e *env) (*types.Story, error) {
	listings, err := e.session.Listings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	if len(listings) == 0 {
		return nil, fmt.Errorf("no story found; run 'storyloom new <title>' first")
	}
	if err := e.session.Load(ctx, listings[0].ID); err != nil {
		return nil, err
	}
	return e.session.Story(), nil
}

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a new story",
	Args:  cobra.ExactArgs(1),
	RunE:  runNewCmd,
}

func runNewCmd(cmd *cobra.Command, args []string) error {
	title := args[0]
	genre, _ := cmd.Flags().GetString("genre")
	tone, _ := cmd.Flags().GetString("tone")
	idea, _ := cmd.Flags().GetString("idea")

	ctx := cmd.Context()
	e, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer e.session.Close(ctx)

	// A non-empty idea seeds the whole story via the model; otherwise an
	// empty story is created and the fields are applied directly.
	if idea != "" {
		return createGenerated(ctx, e, title, idea, genre, tone)
	}

	s := story.New(title)
	if genre != "" || tone != "" {
		fields := story.Fields{}
		if genre != "" {
			fields.Genre = &genre
		}
		if tone != "" {
			fields.Tone = &tone
		}
		result := story.UpdateFields(s, fields)
		s = result.Story
	}
	e.session.SetStory(s)

	fmt.Printf("Created story %s\n", titleStyle.Render(title))
	return nil
}

func createGenerated(ctx context.Context, e *env, title, idea, genre, tone string) error {
	generator, closeProvider, err := buildGenerator(ctx, e, "")
	if err != nil {
		return err
	}
	defer closeProvider()

	fmt.Println("Generating story foundation...")
	generated, err := generator.Generate(ctx, llm.GenerateRequest{
		Title: title,
		Idea:  idea,
		Genre: genre,
		Tone:  tone,
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	s := story.TransformGenerated(generated)
	if s.Title == "" {
		s.Title = title
	}
	e.session.SetStory(s)

	fmt.Printf("Created story %s\n", titleStyle.Render(s.Title))
	fmt.Printf("Elements: %d, Chapters: %d, Relationships: %d\n",
		s.TotalElements(), len(s.Chapters), len(s.Relationships))
	return nil
}

// buildGenerator constructs the provider, token counter and generator for
// the configured (or named) provider.
func buildGenerator(ctx context.Context, e *env, providerName string) (*llm.Generator, func(), error) {
	provider, err := app.NewProvider(ctx, e.config, providerName)
	if err != nil {
		fmt.Println(warnStyle.Render("No usable LLM provider. Run 'storyloom auth' to configure one."))
		return nil, nil, err
	}

	counter, err := token.NewCounter(provider.Capabilities().TokenizerType)
	if err != nil {
		counter = nil
		e.logger.Warn("token counter unavailable, using the character heuristic", "error", err)
	} else {
		e.logger.Debug("token counter ready", "encoding", counter.Encoding())
	}
	generator := llm.NewGenerator(provider, llm.NewCompiler(counter), e.logger)
	return generator, func() { provider.Close() }, nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current story",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer e.session.Close(ctx)

		s, err := loadCurrent(ctx, e)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render(s.Title))
		if s.Genre != "" {
			fmt.Printf("Genre: %s\n", s.Genre)
		}
		if s.Tone != "" {
			fmt.Printf("Tone: %s\n", s.Tone)
		}
		if s.Synopsis != "" {
			fmt.Printf("\n%s\n%s\n", sectionStyle.Render("Synopsis"), s.Synopsis)
		}

		stats := story.ElementStats(s)
		fmt.Printf("\n%s\n", sectionStyle.Render("Contents"))
		for _, typ := range types.ElementTypes {
			if n := stats.ByType[typ]; n > 0 {
				fmt.Printf("  %-12s %d\n", typ, n)
			}
		}
		fmt.Printf("  %-12s %d\n", "relations", len(s.Relationships))
		fmt.Printf("  %-12s %d\n", "chapters", len(s.Chapters))
		fmt.Printf("  %-12s %d (version %d)\n", "snapshots", len(s.Versions), s.CurrentVersion)
		return nil
	},
}

var elementCmd = &cobra.Command{
	Use:   "element",
	Short: "Manage story elements",
}

var elementAddCmd = &cobra.Command{
	Use:   "add <type> <name>",
	Short: "Add an element",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := types.ElementType(args[0])
		description, _ := cmd.Flags().GetString("description")

		ctx := cmd.Context()
		e, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer e.session.Close(ctx)

		if _, err := loadCurrent(ctx, e); err != nil {
			return err
		}

		var created *types.Element
		_, err = e.session.Apply(func(s *types.Story) *types.Story {
			result := story.CreateElement(s, typ, types.ElementData{
				Name:        args[1],
				Description: description,
			})
			if len(result.Errors) > 0 {
				return s
			}
			created = result.Element
			return result.Story
		})
		if err != nil {
			return err
		}
		if created == nil {
			return fmt.Errorf("failed to add element: invalid type or missing name")
		}

		fmt.Printf("Added %s %s %s\n", typ, titleStyle.Render(created.Name), dimStyle.Render(created.ID))
		return nil
	},
}

var elementListCmd = &cobra.Command{
	Use:   "list [type]",
	Short: "List elements, optionally filtered by type",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer e.session.Close(ctx)

		s, err := loadCurrent(ctx, e)
		if err != nil {
			return err
		}

		elementTypes := types.ElementTypes
		if len(args) == 1 {
			typ := types.ElementType(args[0])
			if !types.ValidElementType(typ) {
				return fmt.Errorf("unknown element type %q", args[0])
			}
			elementTypes = []types.ElementType{typ}
		}

		for _, typ := range elementTypes {
			elements := story.ElementsByType(s, typ)
			if len(elements) == 0 {
				continue
			}
			fmt.Println(sectionStyle.Render(string(typ)))
			for _, el := range elements {
				line := fmt.Sprintf("  %s %s", el.Name, dimStyle.Render(el.ID))
				if el.Description != "" {
					line += "\n    " + dimStyle.Render(el.Description)
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

var elementRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove an element and its relationships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer e.session.Close(ctx)

		if _, err := loadCurrent(ctx, e); err != nil {
			return err
		}

		removed := false
		_, err = e.session.Apply(func(s *types.Story) *types.Story {
			result := story.RemoveElement(s, args[0])
			removed = len(result.Errors) == 0
			return result.Story
		})
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("element %q not found", args[0])
		}

		fmt.Printf("Removed element %s\n", args[0])
		return nil
	},
}

var relationCmd = &cobra.Command{
	Use:   "relation",
	Short: "Manage relationships between elements",
}

var relationAddCmd = &cobra.Command{
	Use:   "add <source-id> <target-id> <type>",
	Short: "Add a relationship",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		ctx := cmd.Context()
		e, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer e.session.Close(ctx)

		if _, err := loadCurrent(ctx, e); err != nil {
			return err
		}

		var reason string
		_, err = e.session.Apply(func(s *types.Story) *types.Story {
			result := story.CreateRelationship(s, story.RelationshipData{
				SourceID:    args[0],
				TargetID:    args[1],
				Type:        types.RelationType(args[2]),
				Description: description,
			})
			if len(result.Errors) > 0 {
				reason = result.Errors["general"]
				return s
			}
			return result.Story
		})
		if err != nil {
			return err
		}
		if reason != "" {
			return errors.New(reason)
		}

		fmt.Printf("Added %s relationship %s -> %s\n", args[2], args[0], args[1])
		return nil
	},
}

var relationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List relationships",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer e.session.Close(ctx)

		s, err := loadCurrent(ctx, e)
		if err != nil {
			return err
		}

		if len(s.Relationships) == 0 {
			fmt.Println("No relationships.")
			return nil
		}

		for _, rel := range s.Relationships {
			source := story.ElementByID(s, rel.SourceID)
			target := story.ElementByID(s, rel.TargetID)
			sourceName, targetName := rel.SourceID, rel.TargetID
			if source != nil {
				sourceName = source.Name
			}
			if target != nil {
				targetName = target.Name
			}
			arrow := "<->"
			if info, ok := types.RelationTypes[rel.Type]; ok && info.Directed {
				arrow = "->"
			}
			line := fmt.Sprintf("  %s %s %s  %s", sourceName, arrow, targetName, dimStyle.Render(string(rel.Type)))
			if rel.Description != "" {
				line += dimStyle.Render(": " + rel.Description)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var chapterCmd = &cobra.Command{
	Use:   "chapter",
	Short: "Manage chapters",
}

var chapterAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a chapter and make it current",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, _ := cmd.Flags().GetString("content")
		title := ""
		if len(args) == 1 {
			title = args[0]
		}

		ctx := cmd.Context()
		e, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer e.session.Close(ctx)

		if _, err := loadCurrent(ctx, e); err != nil {
			return err
		}

		var added *types.Chapter
		_, err = e.session.Apply(func(s *types.Story) *types.Story {
			next, ch := story.AddChapter(s, title, content)
			added = ch
			return next
		})
		if err != nil {
			return err
		}

		fmt.Printf("Added chapter %s\n", titleStyle.Render(added.Title))
		return nil
	},
}

var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "Generate continuation options for the current chapter",
	RunE:  runContinueCmd,
}

func runContinueCmd(cmd *cobra.Command, args []string) error {
	modeFlag, _ := cmd.Flags().GetString("mode")
	prompt, _ := cmd.Flags().GetString("prompt")
	providerFlag, _ := cmd.Flags().GetString("provider")

	mode := types.ContinueMode(modeFlag)
	if !types.ValidContinueMode(mode) {
		return fmt.Errorf("unknown mode %q (use natural, twist, conflict or resolution)", modeFlag)
	}

	ctx := cmd.Context()
	e, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer e.session.Close(ctx)

	s, err := loadCurrent(ctx, e)
	if err != nil {
		return err
	}

	generator, closeProvider, err := buildGenerator(ctx, e, providerFlag)
	if err != nil {
		return err
	}
	defer closeProvider()

	fmt.Println("Generating continuation options...")
	options, err := generator.Continue(ctx, s, mode, prompt)
	if err != nil {
		return fmt.Errorf("continuation failed: %w", err)
	}

	selected, err := pickOption(options)
	if err != nil {
		return err
	}
	if selected < 0 {
		fmt.Println("Cancelled.")
		return nil
	}

	var warnings []string
	_, err = e.session.Apply(func(current *types.Story) *types.Story {
		next, w := story.ApplyContinuation(current, options[selected], current.CurrentChapter)
		warnings = w
		return next
	})
	if err != nil {
		return err
	}

	fmt.Printf("Applied %s\n", titleStyle.Render(options[selected].Title))
	for _, w := range warnings {
		fmt.Println(warnStyle.Render("  ! " + w))
	}
	return nil
}

// pickOption renders the three options and asks the user to choose one.
// Returns -1 when the user keeps the story as is.
func pickOption(options []types.ContinuationOption) (int, error) {
	for i, opt := range options {
		fmt.Printf("\n%s %s\n", sectionStyle.Render(fmt.Sprintf("[%d]", i+1)), titleStyle.Render(opt.Title))
		fmt.Printf("%s\n", opt.Preview)
		fmt.Println(dimStyle.Render(fmt.Sprintf("tone: %s, impact: %s", opt.Tone, opt.Impact)))
	}
	fmt.Println()

	choices := make([]huh.Option[int], 0, len(options)+1)
	for i, opt := range options {
		choices = append(choices, huh.NewOption(fmt.Sprintf("%d. %s", i+1, opt.Title), i))
	}
	choices = append(choices, huh.NewOption("Keep the story as is", -1))

	var selected int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Apply which continuation?").
				Options(choices...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return -1, fmt.Errorf("selection failed: %w", err)
	}
	return selected, nil
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the story as markdown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer e.session.Close(ctx)

		s, err := loadCurrent(ctx, e)
		if err != nil {
			return err
		}

		markdown := export.ToMarkdown(s)
		if len(args) == 0 {
			fmt.Print(markdown)
			return nil
		}

		if err := os.WriteFile(args[0], []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Printf("Exported to %s\n", args[0])
		return nil
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Configure LLM provider authentication",
	RunE:  runAuthCmd,
}

func runAuthCmd(cmd *cobra.Command, args []string) error {
	configManager, err := app.NewConfigManager()
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	config, err := configManager.LoadGlobalConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var providerName string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select provider to configure").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Google Gemini", "gemini"),
				).
				Value(&providerName),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("provider selection failed: %w", err)
	}

	providerConfig := config.Providers[providerName]
	if providerConfig == nil {
		providerConfig = &types.ProviderConfig{}
		config.Providers[providerName] = providerConfig
	}

	currentKey := ""
	if providerConfig.APIKey != "" {
		currentKey = " (current: " + maskAPIKey(providerConfig.APIKey) + ")"
	}

	var apiKey, model string
	modelOptions := []huh.Option[string]{
		huh.NewOption("GPT-4o (recommended)", "gpt-4o"),
		huh.NewOption("GPT-4o Mini", "gpt-4o-mini"),
		huh.NewOption("GPT-4 Turbo", "gpt-4-turbo"),
	}
	if providerName == "gemini" {
		modelOptions = []huh.Option[string]{
			huh.NewOption("Gemini 2.5 Flash (recommended)", "gemini-2.5-flash"),
			huh.NewOption("Gemini 2.5 Pro", "gemini-2.5-pro"),
			huh.NewOption("Gemini 2.0 Flash", "gemini-2.0-flash"),
		}
	}

	keyForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Key"+currentKey).
				Value(&apiKey),
			huh.NewSelect[string]().
				Title("Default model").
				Options(modelOptions...).
				Value(&model),
		),
	)
	if err := keyForm.Run(); err != nil {
		return fmt.Errorf("provider setup failed: %w", err)
	}

	if apiKey != "" {
		providerConfig.APIKey = apiKey
	}
	if model != "" {
		providerConfig.DefaultModel = model
	}

	var setDefault bool
	defaultForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Set as default provider?").
				Value(&setDefault),
		),
	)
	if err := defaultForm.Run(); err != nil {
		return fmt.Errorf("default selection failed: %w", err)
	}
	if setDefault {
		config.Defaults.Provider = providerName
	}

	if err := configManager.SaveGlobalConfig(config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("%s configured.\n", providerName)
	return nil
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func init() {
	newCmd.Flags().String("genre", "", "Genre of the new story")
	newCmd.Flags().String("tone", "", "Tone of the new story")
	newCmd.Flags().String("idea", "", "Seed idea; when set the story foundation is AI-generated")

	elementAddCmd.Flags().StringP("description", "d", "", "Element description")
	elementCmd.AddCommand(elementAddCmd, elementListCmd, elementRemoveCmd)

	relationAddCmd.Flags().StringP("description", "d", "", "Relationship description")
	relationCmd.AddCommand(relationAddCmd, relationListCmd)

	chapterAddCmd.Flags().String("content", "", "Initial chapter content")
	chapterCmd.AddCommand(chapterAddCmd)

	continueCmd.Flags().StringP("mode", "m", "natural", "Continuation mode: natural, twist, conflict or resolution")
	continueCmd.Flags().StringP("prompt", "p", "", "Optional guidance for the continuation")
	continueCmd.Flags().String("provider", "", "Override the default LLM provider")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(elementCmd)
	rootCmd.AddCommand(relationCmd)
	rootCmd.AddCommand(chapterCmd)
	rootCmd.AddCommand(continueCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(authCmd)
}
