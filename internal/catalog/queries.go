package catalog

const productFields = `
    id
    name
    description
    price
    image
    category
    createdAt
    updatedAt
    _version
    _deleted
    _lastChangedAt
    __typename`

const listProductsQuery = `query ListProducts($filter: ModelProductFilterInput, $limit: Int, $nextToken: String) {
  listProducts(filter: $filter, limit: $limit, nextToken: $nextToken) {
    items {` + productFields + `
    }
    nextToken
    startedAt
    __typename
  }
}`

const getProductQuery = `query GetProduct($id: ID!) {
  getProduct(id: $id) {` + productFields + `
  }
}`

const createProductMutation = `mutation CreateProduct($input: CreateProductInput!, $condition: ModelProductConditionInput) {
  createProduct(input: $input, condition: $condition) {` + productFields + `
  }
}`

// Subscription names a realtime product subscription.
type Subscription string

const (
	OnCreateProduct Subscription = "onCreateProduct"
	OnUpdateProduct Subscription = "onUpdateProduct"
	OnDeleteProduct Subscription = "onDeleteProduct"
)

var subscriptionQueries = map[Subscription]string{
	OnCreateProduct: `subscription OnCreateProduct($filter: ModelSubscriptionProductFilterInput) {
  onCreateProduct(filter: $filter) {` + productFields + `
  }
}`,
	OnUpdateProduct: `subscription OnUpdateProduct($filter: ModelSubscriptionProductFilterInput) {
  onUpdateProduct(filter: $filter) {` + productFields + `
  }
}`,
	OnDeleteProduct: `subscription OnDeleteProduct($filter: ModelSubscriptionProductFilterInput) {
  onDeleteProduct(filter: $filter) {` + productFields + `
  }
}`,
}
