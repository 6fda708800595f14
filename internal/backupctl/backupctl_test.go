package backupctl

import (
	"context"
	"testing"

	"github.com/frederikb96/kube-borg-backup/internal/config"
	k8s "github.com/frederikb96/kube-borg-backup/internal/k8sclient"

	storagev1 "k8s.io/api/storage/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

func TestCheckStorageClassesDedupsAndFailsOnMissing(t *testing.T) {
	cs := k8sfake.NewSimpleClientset(&storagev1.StorageClass{
		ObjectMeta: metav1.ObjectMeta{Name: "csi-clone"},
	})
	k8s.SetClients(&k8s.Clients{Clientset: cs})

	cfg := &config.AppConfig{}
	cfg.Backup.Specs = []config.BackupSpec{
		{Name: "a", CloneStorageClass: "csi-clone"},
		{Name: "b", CloneStorageClass: "csi-clone"},
	}
	if err := checkStorageClasses(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error for existing storage class: %v", err)
	}

	cfg.Backup.Specs = append(cfg.Backup.Specs, config.BackupSpec{Name: "c", CloneStorageClass: "missing"})
	if err := checkStorageClasses(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing storage class")
	}
}
