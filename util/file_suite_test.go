package util_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/tunnelcore/tunnelcore/shared/status"
	"github.com/tunnelcore/tunnelcore/util"
)

var _ = Describe("File", func() {

	var (
		tmpDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "tunnelcore_util_test_tmp_*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.RemoveAll(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Restricted write", func() {
		Context("to a new nested path", func() {
			It("should create the directories and write the content", func() {
				target := filepath.Join(tmpDir, "etc", "tunnelcore", "server.toml")

				err := util.WriteBytesWithRestrictedPermission(context.Background(), target, []byte("listen_port = 51820\n"))
				Expect(err).NotTo(HaveOccurred())

				read, err := util.ReadFileLimited(target)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(read)).To(Equal("listen_port = 51820\n"))

				info, err := os.Stat(target)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))
			})
		})

		Context("over an existing file", func() {
			It("should replace the content and leave no temp files", func() {
				target := filepath.Join(tmpDir, "server.toml")
				Expect(os.WriteFile(target, []byte("old"), 0644)).To(Succeed())

				err := util.WriteBytesWithRestrictedPermission(context.Background(), target, []byte("new"))
				Expect(err).NotTo(HaveOccurred())

				read, err := os.ReadFile(target)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(read)).To(Equal("new"))

				entries, err := os.ReadDir(tmpDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})
		})

		Context("with a cancelled context", func() {
			It("should fail without touching the target", func() {
				target := filepath.Join(tmpDir, "server.toml")
				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				err := util.WriteBytesWithRestrictedPermission(ctx, target, []byte("data"))
				Expect(err).To(HaveOccurred())
				Expect(status.Is(err, status.IO)).To(BeTrue())
				Expect(util.FileExists(target)).To(BeFalse())
			})
		})
	})

	Describe("Limited read", func() {
		Context("of an oversized file", func() {
			It("should be rejected", func() {
				target := filepath.Join(tmpDir, "big.toml")
				Expect(os.WriteFile(target, []byte(strings.Repeat("#", util.MaxConfigFileSize+1)), 0600)).To(Succeed())

				_, err := util.ReadFileLimited(target)
				Expect(err).To(HaveOccurred())
				Expect(status.Is(err, status.IO)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("too large"))
			})
		})

		Context("of a missing file", func() {
			It("should return an io error wrapping not-exist", func() {
				_, err := util.ReadFileLimited(filepath.Join(tmpDir, "missing.toml"))
				Expect(status.Is(err, status.IO)).To(BeTrue())
				Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
			})
		})
	})
})
