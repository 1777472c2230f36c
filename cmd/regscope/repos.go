package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottbass3/regscope/internal/registry"
)

func newReposCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "repos ID",
		Short: "List the repositories of a registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.provider.Registry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			repos, err := r.Repositories(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(repos))
			for _, repo := range repos {
				rows = append(rows, []string{repo.Name(), repo.Image()})
			}
			return printTable(cmd.OutOrStdout(), r.Label(), "No repositories.", []string{"NAME", "IMAGE"}, rows)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached results")
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "tags ID REPO",
		Short: "List the tags of a repository with their digest and creation time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			tags, err := repo.Tags(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(tags))
			for _, tag := range tags {
				manifest, err := tag.Manifest(cmd.Context())
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					tag.Reference(),
					firstNonEmpty(manifest.Digest.String(), "-"),
					formatTime(manifest.CreatedAt()),
				})
			}
			return printTable(cmd.OutOrStdout(), repo.Image(), "No tags.", []string{"TAG", "DIGEST", "CREATED"}, rows)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached results")
	return cmd
}

func newManifestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest ID REPO REF",
		Short: "Show the manifest summary of a tag",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := a.tag(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			manifest, err := tag.Manifest(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"Image", tag.FullTag()},
				{"Digest", firstNonEmpty(manifest.Digest.String(), "-")},
				{"Created", formatTime(manifest.CreatedAt())},
			}
			return printTable(cmd.OutOrStdout(), "", "", []string{"FIELD", "VALUE"}, rows)
		},
	}
}

func newDeleteTagCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-tag ID REPO REF",
		Short: "Delete the manifest a tag points to",
		Long: `Delete the manifest a tag points to. Every other tag sharing the same
manifest digest disappears with it.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := a.tag(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if err := tag.Delete(cmd.Context()); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Deleted %s", tag.FullTag())
			return nil
		},
	}
}

func newDeleteRepoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-repo ID REPO",
		Short: "Delete every tag of a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if err := repo.Delete(cmd.Context()); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Deleted all tags of %s", repo.Image())
			return nil
		},
	}
}

func (a *app) repository(ctx context.Context, registryID, name string) (*registry.Repository, error) {
	r, err := a.provider.Registry(ctx, registryID)
	if err != nil {
		return nil, err
	}
	return r.Repository(ctx, name)
}

func (a *app) tag(ctx context.Context, registryID, name, reference string) (*registry.Tag, error) {
	repo, err := a.repository(ctx, registryID, name)
	if err != nil {
		return nil, err
	}
	tag, err := repo.Tag(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", repo.FullTag(reference), err)
	}
	return tag, nil
}
