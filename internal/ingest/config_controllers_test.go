package ingest_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/log"

	lookupv1alpha1 "github.com/educates/lookup-service/api/v1alpha1"
	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/identity"
	"github.com/educates/lookup-service/internal/ingest"
)

const (
	testNamespace = "educates-config"

	testKubeconfig = `apiVersion: v1
kind: Config
current-context: remote
clusters:
- name: remote
  cluster:
    server: https://remote.example.com:6443
contexts:
- name: remote
  context:
    cluster: remote
    user: remote
users:
- name: remote
  user:
    token: secret-token
`
)

type recordingWatchers struct {
	mu      sync.Mutex
	ensured map[string][]byte
	stopped []string
}

func (w *recordingWatchers) Ensure(cluster string, kubeconfig []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ensured == nil {
		w.ensured = map[string][]byte{}
	}
	w.ensured[cluster] = kubeconfig
	return nil
}

func (w *recordingWatchers) Stop(cluster string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = append(w.stopped, cluster)
}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
	Expect(lookupv1alpha1.AddToScheme(scheme)).To(Succeed())
	return scheme
}

func request(name string) ctrl.Request {
	return ctrl.Request{NamespacedName: types.NamespacedName{Namespace: testNamespace, Name: name}}
}

var _ = Describe("ClusterConfigReconciler", func() {
	var (
		ctx        context.Context
		store      *cache.Store
		watchers   *recordingWatchers
		reconciler *ingest.ClusterConfigReconciler
	)

	build := func(objects ...client.Object) {
		scheme := newScheme()
		reconciler = &ingest.ClusterConfigReconciler{
			Client:   fake.NewClientBuilder().WithScheme(scheme).WithObjects(objects...).Build(),
			Scheme:   scheme,
			Sink:     ingest.StoreSink{Store: store},
			Watchers: watchers,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = cache.NewStore(log.Log)
		watchers = &recordingWatchers{}
	})

	It("registers the local cluster without credentials", func() {
		build(&lookupv1alpha1.ClusterConfig{
			ObjectMeta: metav1.ObjectMeta{Name: "local", Namespace: testNamespace},
			Spec: lookupv1alpha1.ClusterConfigSpec{
				Labels: map[string]string{"region": "eu"},
			},
		})

		result, err := reconciler.Reconcile(ctx, request("local"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.RequeueAfter).To(BeZero())

		cluster := store.Cluster("local")
		Expect(cluster).NotTo(BeNil())
		Expect(cluster.Labels()).To(HaveKeyWithValue("region", "eu"))
		Expect(cluster.Configuration().Kubeconfig).To(BeEmpty())
		Expect(watchers.ensured).To(HaveKey("local"))
	})

	It("reads the kubeconfig from the referenced secret", func() {
		build(
			&lookupv1alpha1.ClusterConfig{
				ObjectMeta: metav1.ObjectMeta{Name: "remote", Namespace: testNamespace},
				Spec: lookupv1alpha1.ClusterConfigSpec{
					Credentials: lookupv1alpha1.ClusterCredentials{
						Kubeconfig: &lookupv1alpha1.KubeconfigSource{
							SecretRef: lookupv1alpha1.SecretKeyReference{Name: "remote-kubeconfig"},
						},
					},
				},
			},
			&corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: "remote-kubeconfig", Namespace: testNamespace},
				Data:       map[string][]byte{"config": []byte(testKubeconfig)},
			},
		)

		_, err := reconciler.Reconcile(ctx, request("remote"))
		Expect(err).NotTo(HaveOccurred())

		Expect(store.Cluster("remote")).NotTo(BeNil())
		Expect(string(watchers.ensured["remote"])).To(ContainSubstring("https://remote.example.com:6443"))
	})

	It("requeues while the kubeconfig secret is missing", func() {
		build(&lookupv1alpha1.ClusterConfig{
			ObjectMeta: metav1.ObjectMeta{Name: "remote", Namespace: testNamespace},
			Spec: lookupv1alpha1.ClusterConfigSpec{
				Credentials: lookupv1alpha1.ClusterCredentials{
					Kubeconfig: &lookupv1alpha1.KubeconfigSource{
						SecretRef: lookupv1alpha1.SecretKeyReference{Name: "missing"},
					},
				},
			},
		})

		result, err := reconciler.Reconcile(ctx, request("remote"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.RequeueAfter).To(BeNumerically(">", 0))
		Expect(store.Cluster("remote")).To(BeNil())
		Expect(watchers.ensured).To(BeEmpty())
	})

	It("requeues while the secret lacks the kubeconfig key", func() {
		build(
			&lookupv1alpha1.ClusterConfig{
				ObjectMeta: metav1.ObjectMeta{Name: "remote", Namespace: testNamespace},
				Spec: lookupv1alpha1.ClusterConfigSpec{
					Credentials: lookupv1alpha1.ClusterCredentials{
						Kubeconfig: &lookupv1alpha1.KubeconfigSource{
							SecretRef: lookupv1alpha1.SecretKeyReference{Name: "remote-kubeconfig", Key: "kubeconfig"},
						},
					},
				},
			},
			&corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: "remote-kubeconfig", Namespace: testNamespace},
				Data:       map[string][]byte{"config": []byte(testKubeconfig)},
			},
		)

		result, err := reconciler.Reconcile(ctx, request("remote"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.RequeueAfter).To(BeNumerically(">", 0))
		Expect(store.Cluster("remote")).To(BeNil())
	})

	It("removes the cluster and stops watching it once deleted", func() {
		build()
		store.UpsertCluster(cache.ClusterConfiguration{Name: "remote"})

		_, err := reconciler.Reconcile(ctx, request("remote"))
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Cluster("remote")).To(BeNil())
		Expect(watchers.stopped).To(ConsistOf("remote"))
	})
})

var _ = Describe("ClientConfigReconciler", func() {
	var (
		ctx     context.Context
		clients *identity.ClientDatabase
	)

	BeforeEach(func() {
		ctx = context.Background()
		clients = identity.NewClientDatabase(log.Log)
	})

	newReconciler := func(objects ...client.Object) *ingest.ClientConfigReconciler {
		scheme := newScheme()
		return &ingest.ClientConfigReconciler{
			Client:  fake.NewClientBuilder().WithScheme(scheme).WithObjects(objects...).Build(),
			Scheme:  scheme,
			Clients: clients,
		}
	}

	It("registers a client which can then log in", func() {
		reconciler := newReconciler(&lookupv1alpha1.ClientConfig{
			ObjectMeta: metav1.ObjectMeta{Name: "frontend", Namespace: testNamespace},
			Spec: lookupv1alpha1.ClientConfigSpec{
				Client:  lookupv1alpha1.ClientCredentials{Password: "s3cret"},
				User:    lookupv1alpha1.ClientUser{Roles: []string{identity.RoleWorkshopRequestor}},
				Tenants: []string{"acme"},
			},
		})

		_, err := reconciler.Reconcile(ctx, request("frontend"))
		Expect(err).NotTo(HaveOccurred())

		registered := clients.GetClient("frontend")
		Expect(registered).NotTo(BeNil())
		Expect(registered.HasRole(identity.RoleWorkshopRequestor)).To(BeTrue())
		Expect(registered.AllowsTenant("acme")).To(BeTrue())

		uid, err := clients.AuthenticateClient("frontend", "s3cret")
		Expect(err).NotTo(HaveOccurred())
		Expect(uid).To(Equal(registered.UID))
	})

	It("removes a deleted client", func() {
		_, err := clients.UpdateClient(identity.ClientConfig{Name: "frontend", Password: "s3cret"})
		Expect(err).NotTo(HaveOccurred())

		_, err = newReconciler().Reconcile(ctx, request("frontend"))
		Expect(err).NotTo(HaveOccurred())
		Expect(clients.GetClient("frontend")).To(BeNil())
	})
})

var _ = Describe("TenantConfigReconciler", func() {
	var (
		ctx     context.Context
		tenants *identity.TenantDatabase
	)

	BeforeEach(func() {
		ctx = context.Background()
		tenants = identity.NewTenantDatabase(log.Log)
	})

	newReconciler := func(objects ...client.Object) *ingest.TenantConfigReconciler {
		scheme := newScheme()
		return &ingest.TenantConfigReconciler{
			Client:  fake.NewClientBuilder().WithScheme(scheme).WithObjects(objects...).Build(),
			Scheme:  scheme,
			Tenants: tenants,
		}
	}

	It("registers a tenant with name and label selectors", func() {
		reconciler := newReconciler(&lookupv1alpha1.TenantConfig{
			ObjectMeta: metav1.ObjectMeta{Name: "acme", Namespace: testNamespace},
			Spec: lookupv1alpha1.TenantConfigSpec{
				Clusters: lookupv1alpha1.ResourceSelector{
					NameSelector: lookupv1alpha1.NameSelector{MatchNames: []string{"prod-*"}},
				},
				Portals: lookupv1alpha1.ResourceSelector{
					LabelSelector: &metav1.LabelSelector{
						MatchLabels: map[string]string{"customer": "acme"},
					},
				},
			},
		})

		_, err := reconciler.Reconcile(ctx, request("acme"))
		Expect(err).NotTo(HaveOccurred())

		tenant := tenants.GetTenant("acme")
		Expect(tenant).NotTo(BeNil())
		Expect(tenant.Clusters.Matches("prod-eu", nil)).To(BeTrue())
		Expect(tenant.Clusters.Matches("dev-eu", nil)).To(BeFalse())
		Expect(tenant.Portals.Matches("any", map[string]string{"customer": "acme"})).To(BeTrue())
		Expect(tenant.Portals.Matches("any", map[string]string{"customer": "globex"})).To(BeFalse())
	})

	It("rejects an invalid label selector", func() {
		reconciler := newReconciler(&lookupv1alpha1.TenantConfig{
			ObjectMeta: metav1.ObjectMeta{Name: "broken", Namespace: testNamespace},
			Spec: lookupv1alpha1.TenantConfigSpec{
				Portals: lookupv1alpha1.ResourceSelector{
					LabelSelector: &metav1.LabelSelector{
						MatchExpressions: []metav1.LabelSelectorRequirement{
							{Key: "customer", Operator: "Bogus"},
						},
					},
				},
			},
		})

		_, err := reconciler.Reconcile(ctx, request("broken"))
		Expect(err).NotTo(HaveOccurred())
		Expect(tenants.GetTenant("broken")).To(BeNil())
	})

	It("withdraws the previous definition when an update is rejected", func() {
		Expect(tenants.UpdateTenant(&identity.Tenant{
			Name:    "acme",
			Portals: identity.Selector{MatchNames: []string{"*"}},
		})).To(Succeed())

		reconciler := newReconciler(&lookupv1alpha1.TenantConfig{
			ObjectMeta: metav1.ObjectMeta{Name: "acme", Namespace: testNamespace},
			Spec: lookupv1alpha1.TenantConfigSpec{
				Portals: lookupv1alpha1.ResourceSelector{
					LabelSelector: &metav1.LabelSelector{
						MatchExpressions: []metav1.LabelSelectorRequirement{
							{Key: "customer", Operator: "Bogus"},
						},
					},
				},
			},
		})

		_, err := reconciler.Reconcile(ctx, request("acme"))
		Expect(err).NotTo(HaveOccurred())
		Expect(tenants.GetTenant("acme")).To(BeNil())
	})

	It("removes a deleted tenant", func() {
		Expect(tenants.UpdateTenant(&identity.Tenant{Name: "acme"})).To(Succeed())

		_, err := newReconciler().Reconcile(ctx, request("acme"))
		Expect(err).NotTo(HaveOccurred())
		Expect(tenants.GetTenant("acme")).To(BeNil())
	})
})
